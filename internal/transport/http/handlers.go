package httptransport

import (
	stderrors "errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"fro-server/internal/app/presenter"
	"fro-server/internal/app/workspace"
	"fro-server/internal/domain/analysis"
	"fro-server/internal/domain/capture"
	"fro-server/internal/domain/preferences"
	"fro-server/internal/platform/errors"
	"fro-server/internal/platform/logging"
)

// ServiceInfo is reported by the health endpoint.
type ServiceInfo struct {
	VisionType        string `json:"vision_type"`
	VisionModel       string `json:"vision_model"`
	CameraPlatform    string `json:"camera_platform"`
	PreferencesDriver string `json:"preferences_driver"`
	CareGuide         bool   `json:"care_guide"`
}

// HandlerOptions configures Handler.
type HandlerOptions struct {
	Workspaces  *workspace.Manager
	Preferences preferences.Store
	Info        ServiceInfo
	Logger      *logging.Logger
}

// Handler serves the /api routes.
type Handler struct {
	workspaces *workspace.Manager
	prefs      preferences.Store
	info       ServiceInfo
	logger     *logging.Logger
	started    time.Time
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	const op = "httptransport.NewHandler"
	if opts.Workspaces == nil {
		return nil, errors.New(errors.KindConfig, op, "workspace manager is required")
	}
	if opts.Preferences == nil {
		return nil, errors.New(errors.KindConfig, op, "preferences store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.DefaultLogger
	}
	return &Handler{
		workspaces: opts.Workspaces,
		prefs:      opts.Preferences,
		info:       opts.Info,
		logger:     logger,
		started:    time.Now(),
	}, nil
}

// Register mounts every route on r.
func (h *Handler) Register(r *Router) {
	api := r.API
	api.GET("/health", h.handleHealth)
	api.POST("/analyze", h.handleAnalyze)

	ws := api.Group("/workspaces/:id")
	ws.GET("", h.handleGetWorkspace)
	ws.DELETE("", h.handleClearWorkspace)
	ws.POST("/camera", h.handleOpenCamera)
	ws.DELETE("/camera", h.handleCloseCamera)
	ws.POST("/camera/switch", h.handleSwitchCamera)
	ws.POST("/camera/capture", h.handleCapture)
	ws.POST("/file", h.handleSelectFile)
	ws.POST("/analysis", h.handleRunAnalysis)

	api.GET("/preferences/:client/tutorial", h.handleGetTutorial)
	api.PUT("/preferences/:client/tutorial", h.handlePutTutorial)

	registerDocs(r.Engine, h.logger)
	h.logger.InfoTag("HTTP", "api routes registered")
}

// WorkspaceView is the payload of workspace endpoints.
type WorkspaceView struct {
	workspace.Snapshot
	Result presenter.View `json:"result"`
}

func viewOf(w *workspace.Workspace) WorkspaceView {
	snap := w.Snapshot()
	return WorkspaceView{Snapshot: snap, Result: presenter.Render(snap.Cycle)}
}

func (h *Handler) workspace(c *gin.Context) (*workspace.Workspace, bool) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		RespondError(c, http.StatusBadRequest, "Identificador do cliente ausente.", nil)
		return nil, false
	}
	return h.workspaces.Get(id), true
}

// handleGetWorkspace
// @Summary Workspace state
// @Description Camera, fallback, current image and the rendered result card
// @Tags Workspace
// @Produce json
// @Param id path string true "client id"
// @Success 200 {object} APIResponse
// @Router /workspaces/{id} [get]
func (h *Handler) handleGetWorkspace(c *gin.Context) {
	w, ok := h.workspace(c)
	if !ok {
		return
	}
	RespondSuccess(c, http.StatusOK, viewOf(w), "")
}

// handleClearWorkspace
// @Summary Clear everything
// @Tags Workspace
// @Param id path string true "client id"
// @Success 200 {object} APIResponse
// @Failure 409 {object} APIResponse
// @Router /workspaces/{id} [delete]
func (h *Handler) handleClearWorkspace(c *gin.Context) {
	w, ok := h.workspace(c)
	if !ok {
		return
	}
	if err := w.ClearAll(); err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondSuccess(c, http.StatusOK, viewOf(w), "")
}

type openCameraRequest struct {
	DeviceID string `json:"device_id"`
}

// handleOpenCamera
// @Summary Open a camera
// @Description Rear camera preferred when device_id is empty. 409 with fallback=true when no camera is available.
// @Tags Camera
// @Accept json
// @Param id path string true "client id"
// @Param body body openCameraRequest false "device selection"
// @Success 200 {object} APIResponse
// @Failure 409 {object} APIResponse
// @Router /workspaces/{id}/camera [post]
func (h *Handler) handleOpenCamera(c *gin.Context) {
	w, ok := h.workspace(c)
	if !ok {
		return
	}
	var req openCameraRequest
	if err := c.ShouldBindJSON(&req); err != nil && !stderrors.Is(err, io.EOF) {
		RespondError(c, http.StatusBadRequest, "Requisição inválida.", gin.H{"error": err.Error()})
		return
	}
	if _, err := w.OpenCamera(c.Request.Context(), req.DeviceID); err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondSuccess(c, http.StatusOK, viewOf(w), "")
}

// handleSwitchCamera
// @Summary Switch to the next camera
// @Tags Camera
// @Param id path string true "client id"
// @Success 200 {object} APIResponse
// @Router /workspaces/{id}/camera/switch [post]
func (h *Handler) handleSwitchCamera(c *gin.Context) {
	w, ok := h.workspace(c)
	if !ok {
		return
	}
	if _, err := w.SwitchCamera(c.Request.Context()); err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondSuccess(c, http.StatusOK, viewOf(w), "")
}

// handleCapture
// @Summary Capture a still
// @Description Grabs the current frame, stores it as the workspace image and closes the camera
// @Tags Camera
// @Param id path string true "client id"
// @Success 200 {object} APIResponse
// @Failure 400 {object} APIResponse
// @Router /workspaces/{id}/camera/capture [post]
func (h *Handler) handleCapture(c *gin.Context) {
	w, ok := h.workspace(c)
	if !ok {
		return
	}
	if _, err := w.Capture(c.Request.Context()); err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondSuccess(c, http.StatusOK, viewOf(w), "Foto capturada.")
}

// handleCloseCamera
// @Summary Close the camera
// @Tags Camera
// @Param id path string true "client id"
// @Success 200 {object} APIResponse
// @Router /workspaces/{id}/camera [delete]
func (h *Handler) handleCloseCamera(c *gin.Context) {
	w, ok := h.workspace(c)
	if !ok {
		return
	}
	w.CloseCamera()
	RespondSuccess(c, http.StatusOK, viewOf(w), "")
}

// handleSelectFile
// @Summary Upload a photo
// @Tags Workspace
// @Accept multipart/form-data
// @Param id path string true "client id"
// @Param file formData file true "plant photo"
// @Success 200 {object} APIResponse
// @Failure 422 {object} APIResponse
// @Router /workspaces/{id}/file [post]
func (h *Handler) handleSelectFile(c *gin.Context) {
	w, ok := h.workspace(c)
	if !ok {
		return
	}
	file, name, ok := openUpload(c)
	if !ok {
		return
	}
	defer file.Close()

	if _, err := w.SelectFile(c.Request.Context(), file, name); err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondSuccess(c, http.StatusOK, viewOf(w), "")
}

// handleRunAnalysis
// @Summary Analyze the current image
// @Description Identification then health analysis. 502 on model failure, 504 on timeout.
// @Tags Analysis
// @Param id path string true "client id"
// @Success 200 {object} APIResponse
// @Failure 400 {object} APIResponse
// @Failure 409 {object} APIResponse
// @Failure 502 {object} APIResponse
// @Failure 504 {object} APIResponse
// @Router /workspaces/{id}/analysis [post]
func (h *Handler) handleRunAnalysis(c *gin.Context) {
	w, ok := h.workspace(c)
	if !ok {
		return
	}
	if _, err := w.Analyze(c.Request.Context()); err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondSuccess(c, http.StatusOK, viewOf(w), "")
}

// AnalyzeResult is the payload of the stateless analyze endpoint.
type AnalyzeResult struct {
	Cycle  analysis.Cycle `json:"cycle"`
	Result presenter.View `json:"result"`
}

// handleAnalyze
// @Summary One-shot analysis
// @Description Uploads a photo and returns identification and health analysis without keeping state
// @Tags Analysis
// @Accept multipart/form-data
// @Param file formData file true "plant photo"
// @Success 200 {object} APIResponse
// @Failure 422 {object} APIResponse
// @Failure 502 {object} APIResponse
// @Router /analyze [post]
func (h *Handler) handleAnalyze(c *gin.Context) {
	file, name, ok := openUpload(c)
	if !ok {
		return
	}
	defer file.Close()

	cycle, err := h.workspaces.AnalyzeFile(c.Request.Context(), file, name)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondSuccess(c, http.StatusOK, AnalyzeResult{Cycle: cycle, Result: presenter.Render(cycle)}, "")
}

func openUpload(c *gin.Context) (io.ReadCloser, string, bool) {
	header, err := c.FormFile("file")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "Nenhum arquivo enviado.", gin.H{"error": err.Error()})
		return nil, "", false
	}
	file, err := header.Open()
	if err != nil {
		RespondDomainError(c, errors.Wrap(errors.KindCapture, "httptransport.openUpload", "open upload",
			stderrors.Join(capture.ErrFileRead, err)))
		return nil, "", false
	}
	return file, header.Filename, true
}

// TutorialState is the payload of the tutorial preference endpoints.
type TutorialState struct {
	ClientID string `json:"client_id"`
	Seen     bool   `json:"seen"`
}

type tutorialRequest struct {
	Seen *bool `json:"seen" binding:"required"`
}

// handleGetTutorial
// @Summary Whether the tutorial was shown
// @Tags Preferences
// @Param client path string true "client id"
// @Success 200 {object} APIResponse
// @Router /preferences/{client}/tutorial [get]
func (h *Handler) handleGetTutorial(c *gin.Context) {
	clientID := c.Param("client")
	seen, err := preferences.TutorialSeen(c.Request.Context(), h.prefs, clientID)
	if err != nil {
		h.logger.ErrorTag("PREFS", "read tutorial flag for %s: %v", clientID, err)
		RespondDomainError(c, err)
		return
	}
	RespondSuccess(c, http.StatusOK, TutorialState{ClientID: clientID, Seen: seen}, "")
}

// handlePutTutorial
// @Summary Record that the tutorial was shown
// @Tags Preferences
// @Accept json
// @Param client path string true "client id"
// @Param body body tutorialRequest true "flag"
// @Success 200 {object} APIResponse
// @Router /preferences/{client}/tutorial [put]
func (h *Handler) handlePutTutorial(c *gin.Context) {
	clientID := c.Param("client")
	var req tutorialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "Requisição inválida.", gin.H{"error": err.Error()})
		return
	}
	if err := preferences.SetTutorialSeen(c.Request.Context(), h.prefs, clientID, *req.Seen); err != nil {
		h.logger.ErrorTag("PREFS", "write tutorial flag for %s: %v", clientID, err)
		RespondDomainError(c, err)
		return
	}
	RespondSuccess(c, http.StatusOK, TutorialState{ClientID: clientID, Seen: *req.Seen}, "")
}
