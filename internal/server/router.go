package server

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/studybuddy/backend/internal/gateway"
	"github.com/studybuddy/backend/internal/rooms"
	"github.com/studybuddy/backend/internal/study"
	"github.com/studybuddy/backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const userIDContextKey = "studybuddy_user_id"

var (
	errMissingTokenIssuer  = errors.New("token issuer dependency required")
	errMissingUsersService = errors.New("users service dependency required")
	errMissingRoomStore    = errors.New("room store dependency required")
	errMissingStudyService = errors.New("study service dependency required")
	errMissingGateway      = errors.New("gateway dependency required")
)

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9.-]`)

// TokenIssuer issues and validates the bearer tokens used by the REST API.
type TokenIssuer interface {
	Issue(userID string) (string, int64, error)
	Validate(token string) (string, error)
}

// Dependencies wires the HTTP layer's collaborators.
type Dependencies struct {
	Tokens         TokenIssuer
	Users          *users.Service
	Rooms          *rooms.Store
	Study          *study.Service
	Gateway        *gateway.Gateway
	Database       *gorm.DB
	UploadDir      string
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewHTTPHandler builds the gin handler serving the REST API, the upload
// directory, and the realtime websocket endpoint.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Tokens == nil {
		return nil, errMissingTokenIssuer
	}
	if deps.Users == nil {
		return nil, errMissingUsersService
	}
	if deps.Rooms == nil {
		return nil, errMissingRoomStore
	}
	if deps.Study == nil {
		return nil, errMissingStudyService
	}
	if deps.Gateway == nil {
		return nil, errMissingGateway
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:    deps.Tokens,
		users:     deps.Users,
		rooms:     deps.Rooms,
		study:     deps.Study,
		db:        deps.Database,
		uploadDir: deps.UploadDir,
		logger:    logger,
	}

	api := router.Group("/api")
	api.GET("/auth/health", handler.handleHealth)
	api.POST("/auth/signup", handler.handleSignup)
	api.POST("/auth/login", handler.handleLogin)

	api.GET("/rooms", handler.handleListRooms)
	api.GET("/rooms/:id", handler.handleGetRoom)

	protected := api.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/rooms", handler.handleCreateRoom)
	protected.POST("/rooms/:id/join", handler.handleJoinRoom)
	protected.POST("/rooms/:id/files", handler.handleAddRoomFile)
	protected.GET("/flashcards", handler.handleListFlashcards)
	protected.POST("/flashcards", handler.handleCreateFlashcard)
	protected.GET("/flashcards/:id", handler.handleGetFlashcard)
	protected.DELETE("/flashcards/:id", handler.handleDeleteFlashcard)
	protected.GET("/resources", handler.handleListResources)
	protected.POST("/resources", handler.handleCreateResource)
	protected.GET("/dashboard", handler.handleDashboard)

	router.GET("/ws", gateway.ServeWS(deps.Gateway, logger))
	if deps.UploadDir != "" {
		router.Static("/uploads", deps.UploadDir)
	}

	return router, nil
}

type httpHandler struct {
	tokens    TokenIssuer
	users     *users.Service
	rooms     *rooms.Store
	study     *study.Service
	db        *gorm.DB
	uploadDir string
	logger    *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	if h.db != nil {
		sqlDB, err := h.db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "message": "database not reachable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "message": "database connected"})
}

type signupPayload struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

type loginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Message string       `json:"message"`
	Token   string       `json:"token"`
	User    users.Public `json:"user"`
}

func (h *httpHandler) handleSignup(c *gin.Context) {
	var request signupPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Email) == "" || request.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "email and password are required"})
		return
	}

	user, err := h.users.Signup(c.Request.Context(), request.Email, request.Password, request.DisplayName)
	if errors.Is(err, users.ErrEmailTaken) {
		c.JSON(http.StatusBadRequest, gin.H{"message": "User already exists"})
		return
	}
	if err != nil {
		h.logger.Error("signup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error during signup"})
		return
	}

	token, _, err := h.tokens.Issue(user.ID)
	if err != nil {
		h.logger.Error("token issue failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error during signup"})
		return
	}

	c.JSON(http.StatusCreated, authResponse{Message: "User created successfully", Token: token, User: user.Public()})
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid credentials"})
		return
	}

	user, err := h.users.Login(c.Request.Context(), request.Email, request.Password)
	if errors.Is(err, users.ErrInvalidCredentials) {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid credentials"})
		return
	}
	if err != nil {
		h.logger.Error("login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error during login"})
		return
	}

	token, _, err := h.tokens.Issue(user.ID)
	if err != nil {
		h.logger.Error("token issue failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error during login"})
		return
	}

	c.JSON(http.StatusOK, authResponse{Message: "Login successful", Token: token, User: user.Public()})
}

type createRoomPayload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *httpHandler) handleCreateRoom(c *gin.Context) {
	var request createRoomPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Room name is required"})
		return
	}

	room, err := h.rooms.Create(c.Request.Context(), request.Name, request.Description, c.GetString(userIDContextKey))
	if err != nil {
		h.logger.Error("room create failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}
	c.JSON(http.StatusCreated, room)
}

func (h *httpHandler) handleListRooms(c *gin.Context) {
	result, err := h.rooms.List(c.Request.Context())
	if err != nil {
		h.logger.Error("room list failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *httpHandler) handleGetRoom(c *gin.Context) {
	detail, err := h.rooms.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, rooms.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Room not found"})
		return
	}
	if err != nil {
		h.logger.Error("room get failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *httpHandler) handleJoinRoom(c *gin.Context) {
	detail, err := h.rooms.Join(c.Request.Context(), c.Param("id"), c.GetString(userIDContextKey))
	if errors.Is(err, rooms.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Room not found"})
		return
	}
	if err != nil {
		h.logger.Error("room join failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}
	c.JSON(http.StatusOK, detail)
}

type addFilePayload struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

func (h *httpHandler) handleAddRoomFile(c *gin.Context) {
	var request addFilePayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.URL) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Missing file url"})
		return
	}
	title := request.Title
	if title == "" {
		title = "File"
	}

	entry, err := h.rooms.AddFile(c.Request.Context(), c.Param("id"), title, request.URL, c.GetString(userIDContextKey))
	if errors.Is(err, rooms.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Room not found"})
		return
	}
	if err != nil {
		h.logger.Error("room file add failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}
	c.JSON(http.StatusCreated, entry)
}

type createFlashcardPayload struct {
	Title      string   `json:"title"`
	Front      string   `json:"front"`
	Back       string   `json:"back"`
	SharedWith []string `json:"sharedWith"`
}

func (h *httpHandler) handleCreateFlashcard(c *gin.Context) {
	var request createFlashcardPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid flashcard"})
		return
	}

	card, err := h.study.CreateFlashcard(c.Request.Context(), c.GetString(userIDContextKey),
		request.Title, request.Front, request.Back, request.SharedWith)
	if err != nil {
		h.logger.Error("flashcard create failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}
	c.JSON(http.StatusCreated, card)
}

func (h *httpHandler) handleListFlashcards(c *gin.Context) {
	cards, err := h.study.ListFlashcards(c.Request.Context(), c.GetString(userIDContextKey))
	if err != nil {
		h.logger.Error("flashcard list failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}
	c.JSON(http.StatusOK, cards)
}

func (h *httpHandler) handleGetFlashcard(c *gin.Context) {
	card, err := h.study.GetFlashcard(c.Request.Context(), c.GetString(userIDContextKey), c.Param("id"))
	switch {
	case errors.Is(err, study.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "Not found"})
	case errors.Is(err, study.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"message": "Forbidden"})
	case err != nil:
		h.logger.Error("flashcard get failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
	default:
		c.JSON(http.StatusOK, card)
	}
}

func (h *httpHandler) handleDeleteFlashcard(c *gin.Context) {
	err := h.study.DeleteFlashcard(c.Request.Context(), c.GetString(userIDContextKey), c.Param("id"))
	switch {
	case errors.Is(err, study.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "Not found"})
	case errors.Is(err, study.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"message": "Forbidden"})
	case err != nil:
		h.logger.Error("flashcard delete failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
	default:
		c.JSON(http.StatusOK, gin.H{"message": "Deleted"})
	}
}

func (h *httpHandler) handleCreateResource(c *gin.Context) {
	title := c.PostForm("title")
	description := c.PostForm("description")
	url := c.PostForm("url")
	tags := splitTags(c.PostForm("tags"))

	if file, err := c.FormFile("file"); err == nil && h.uploadDir != "" {
		name := fmt.Sprintf("%d-%s", time.Now().UnixNano(),
			unsafeFilenameChars.ReplaceAllString(filepath.Base(file.Filename), "_"))
		if err := c.SaveUploadedFile(file, filepath.Join(h.uploadDir, name)); err != nil {
			h.logger.Error("upload save failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
			return
		}
		url = "/uploads/" + name
	}

	resource, err := h.study.CreateResource(c.Request.Context(), c.GetString(userIDContextKey),
		title, description, url, tags)
	if err != nil {
		h.logger.Error("resource create failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}
	c.JSON(http.StatusCreated, resource)
}

func (h *httpHandler) handleListResources(c *gin.Context) {
	resources, err := h.study.ListResources(c.Request.Context())
	if err != nil {
		h.logger.Error("resource list failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}
	c.JSON(http.StatusOK, resources)
}

func (h *httpHandler) handleDashboard(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	user, err := h.users.GetByID(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid token"})
		return
	}

	dashboard, err := h.study.BuildDashboard(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("dashboard build failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"profile":    user.Public(),
		"rooms":      dashboard.Rooms,
		"resources":  dashboard.Resources,
		"flashcards": dashboard.Flashcards,
	})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Missing auth token"})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Missing auth token"})
		return
	}
	userID, err := h.tokens.Validate(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Authentication failed"})
		return
	}
	c.Set(userIDContextKey, userID)
	c.Next()
}

func splitTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			tags = append(tags, trimmed)
		}
	}
	return tags
}
