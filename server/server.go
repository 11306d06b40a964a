// Package server runs documents through the pipeline on request, either over
// a websocket that streams progress or with a plain HTTP request.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/xhad/pdfalt/internal/logger"
	"github.com/xhad/pdfalt/internal/pipeline"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Be careful with this in production
	},
}

// Message types.
const (
	TypeProcess  = "process"
	TypeStatus   = "status"
	TypeProgress = "progress"
	TypeResult   = "result"
	TypeError    = "error"
)

type Message struct {
	Type    string      `json:"type"`
	Content string      `json:"content"`
	Data    interface{} `json:"data,omitempty"`
}

// Progress is the data of a progress message.
type Progress struct {
	Stage string `json:"stage"`
	Done  int    `json:"done"`
	Total int    `json:"total"`
}

// Summary is the data of a result message.
type Summary struct {
	RunID          string `json:"run_id"`
	ContextTable   string `json:"context_table"`
	DescribedTable string `json:"described_table"`
	Output         string `json:"output"`
	Images         int    `json:"images"`
	Skipped        int    `json:"skipped"`
	Fallbacks      int    `json:"fallbacks"`
}

// Runner runs all phases on one document.
type Runner interface {
	Run(ctx context.Context, input string) (*pipeline.Result, error)
}

// RunnerFactory returns a runner reporting progress to onProgress.
type RunnerFactory func(onProgress pipeline.ProgressFunc) Runner

type Config struct {
	Addr string
	// RootDir confines the documents clients may process.
	RootDir string
}

type WSServer struct {
	config    Config
	newRunner RunnerFactory
}

func NewWSServer(config Config, newRunner RunnerFactory) (*WSServer, error) {
	if config.Addr == "" {
		config.Addr = ":8080"
	}
	if config.RootDir == "" {
		config.RootDir = "."
	}
	root, err := filepath.Abs(config.RootDir)
	if err != nil {
		return nil, fmt.Errorf("invalid root directory: %v", err)
	}
	config.RootDir = root

	return &WSServer{config: config, newRunner: newRunner}, nil
}

// ProcessRequest is the body of POST /process.
type ProcessRequest struct {
	Path string `json:"path" binding:"required"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Handler serves /ws, /process and /health.
func (s *WSServer) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/health", healthCheck)
	r.GET("/ws", gin.WrapF(s.handleWebSocket))
	r.POST("/process", s.process)

	return r
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "available",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// process runs one document synchronously and answers with its summary.
func (s *WSServer) process(c *gin.Context) {
	var req ProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request format", err)
		return
	}

	path, err := s.resolve(req.Path)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid document", err)
		return
	}

	result, err := s.newRunner(nil).Run(c.Request.Context(), path)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			code = http.StatusGatewayTimeout
		}
		respondError(c, code, "run failed", err)
		return
	}

	c.JSON(http.StatusOK, summarize(result))
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		}).Debug("Request handled")
	}
}

func respondError(c *gin.Context, code int, message string, err error) {
	logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"message":     message,
	}).Warn("Request failed")
	c.JSON(code, ErrorResponse{Error: message, Message: err.Error()})
}

// ListenAndServe serves until ctx is done.
func (s *WSServer) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{Addr: s.config.Addr, Handler: s.Handler()}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", s.config.Addr).Info("Starting WebSocket server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// client serializes writes to one connection.
type client struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *client) send(msgType, content string, data interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteJSON(Message{Type: msgType, Content: content, Data: data}); err != nil {
		logger.WithError(err).Warn("Error sending message")
	}
}

func (s *WSServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &client{conn: conn}
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.WithError(err).Debug("Error reading message")
			}
			cancel()
			return
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			c.send(TypeError, fmt.Sprintf("invalid message: %v", err), nil)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleMessage(ctx, c, msg)
		}()
	}
}

func (s *WSServer) handleMessage(ctx context.Context, c *client, msg Message) {
	if msg.Type != TypeProcess {
		c.send(TypeError, fmt.Sprintf("unsupported message type: %q", msg.Type), nil)
		return
	}

	path, err := s.resolve(msg.Content)
	if err != nil {
		c.send(TypeError, err.Error(), nil)
		return
	}

	log := logger.WithFields(logrus.Fields{"document": path})
	c.send(TypeStatus, fmt.Sprintf("Processing %s", filepath.Base(path)), nil)

	runner := s.newRunner(func(stage string, done, total int) {
		c.send(TypeProgress, stage, Progress{Stage: stage, Done: done, Total: total})
	})

	result, err := runner.Run(ctx, path)
	if err != nil {
		log.WithError(err).Warn("Run failed")
		c.send(TypeError, err.Error(), nil)
		return
	}

	c.send(TypeResult, result.Output, summarize(result))
}

func summarize(result *pipeline.Result) Summary {
	return Summary{
		RunID:          result.RunID.String(),
		ContextTable:   result.ContextTable,
		DescribedTable: result.DescribedTable,
		Output:         result.Output,
		Images:         len(result.DescribeResult.Records),
		Skipped:        len(result.Skipped),
		Fallbacks:      len(result.Failures),
	}
}

// resolve maps a requested document to a path inside the root directory.
func (s *WSServer) resolve(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("no document given")
	}
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.config.RootDir, path)
	}
	path = filepath.Clean(path)

	rel, err := filepath.Rel(s.config.RootDir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("document %q is outside the served directory", name)
	}
	return path, nil
}
