package analysis

const (
	LabelIdentifying     = "Frô está identificando..."
	LabelHealthAnalyzing = "Frô está analisando a saúde..."
	LabelCareGuide       = "Frô está preparando as dicas de cuidado..."

	// DescriptionPlaceholder stands in for an empty identification description.
	DescriptionPlaceholder = "Imagem da planta"
)

const (
	noticeNoImageTitle    = "Nenhuma Imagem"
	noticeNoImageBody     = "Por favor, envie uma foto da planta ou capture uma com a câmera."
	noticeIdentifiedTitle = "Planta Identificada"
	noticeHealthTitle     = "Saúde Analisada"
	noticeHealthyBody     = "A planta parece saudável."
	noticeUnhealthyBody   = "A planta pode precisar de atenção."
	noticeFailedTitle     = "Análise Falhou"

	failureUnidentified = "Não foi possível identificar a planta. Tente uma foto mais nítida ou de um ângulo diferente."
	failureTimeout      = "A análise demorou demais para responder. Tente novamente."
	failureGeneric      = "Ocorreu um erro inesperado durante a análise."
)
