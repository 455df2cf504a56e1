package capture

// User-facing notice texts.
const (
	noticeUnsupportedTitle = "Erro de Câmera"
	noticeUnsupportedBody  = "Seu navegador não suporta acesso à câmera. Por favor, envie um arquivo."
	noticeDeniedTitle      = "Acesso à Câmera Negado"
	noticeDeniedBody       = "Por favor, habilite as permissões da câmera ou use a opção de envio de arquivo."
	noticeSingleTitle      = "Câmera Única"
	noticeSingleBody       = "Apenas uma câmera foi detectada."
	noticeCapturedTitle    = "Foto Capturada"
	noticeCapturedBody     = "A imagem da câmera foi capturada."
	noticeCaptureFailTitle = "Erro ao Capturar"
	noticeCaptureFailBody  = "Não foi possível processar a imagem da câmera."
	noticeFileFailTitle    = "Erro"
	noticeFileFailBody     = "Falha ao ler o arquivo."
)
