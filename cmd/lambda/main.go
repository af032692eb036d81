// VisionChat - AWS Lambda serverless handler
// Receives chat submissions as JSON through API Gateway and answers them synchronously.
//
// Environment variables:
//   VISIONCHAT_CONFIG_JSON     - Full config JSON (alternative to config file)
//   VISIONCHAT_CONFIG_PATH     - Config file path (default: config.json)
//   VISIONCHAT_API_KEY         - Google API key used when the request carries none
//   VISIONCHAT_WEBHOOK_SECRET  - Optional shared secret checked against x-visionchat-secret

package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/sipeed/visionchat/pkg/chat"
	"github.com/sipeed/visionchat/pkg/config"
	"github.com/sipeed/visionchat/pkg/history"
	"github.com/sipeed/visionchat/pkg/logger"
	"github.com/sipeed/visionchat/pkg/media"
	"github.com/sipeed/visionchat/pkg/view"
)

var (
	service  *chat.Service
	cfg      *config.Config
	initOnce sync.Once
	initErr  error
)

type askRequest struct {
	APIKey    string `json:"api_key"`
	Model     string `json:"model"`
	Text      string `json:"text"`
	SessionID string `json:"session_id"`
	Image     *struct {
		Data string `json:"data"`
		MIME string `json:"mime"`
	} `json:"image,omitempty"`
}

type askResponse struct {
	Path     chat.Path `json:"path"`
	Warning  string    `json:"warning,omitempty"`
	Response string    `json:"response,omitempty"`
	Error    string    `json:"error,omitempty"`
}

func initialize() error {
	initOnce.Do(func() {
		initErr = doInit()
	})
	return initErr
}

func doInit() error {
	configPath := os.Getenv("VISIONCHAT_CONFIG_PATH")
	if configPath == "" {
		configPath = "config.json"
	}

	var err error
	cfg, err = config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger.Init(os.Stderr, cfg.Log.Level, false)

	store, err := history.Open(cfg)
	if err != nil {
		return fmt.Errorf("opening history: %w", err)
	}
	service = chat.NewService(cfg, store, nil)

	logger.InfoCF("lambda", "Lambda initialized", map[string]interface{}{
		"provider": cfg.Chat.Provider,
		"model":    cfg.Chat.Model,
		"history":  cfg.History.Driver,
	})
	return nil
}

func respond(status int, body any) events.APIGatewayProxyResponse {
	data, err := json.Marshal(body)
	if err != nil {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError}
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(data),
	}
}

func handler(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if err := initialize(); err != nil {
		logger.ErrorCF("lambda", "Init error", map[string]interface{}{"error": err.Error()})
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError}, nil
	}

	// Verify shared secret if configured
	if secret := os.Getenv("VISIONCHAT_WEBHOOK_SECRET"); secret != "" {
		got := request.Headers["x-visionchat-secret"]
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			return respond(http.StatusUnauthorized, map[string]string{"error": "unauthorized"}), nil
		}
	}

	var req askRequest
	if err := json.Unmarshal([]byte(request.Body), &req); err != nil {
		return respond(http.StatusBadRequest, map[string]string{"error": "bad request"}), nil
	}

	sub := chat.Submission{
		APIKey: req.APIKey,
		Model:  req.Model,
		Text:   strings.TrimSpace(req.Text),
	}
	if sub.APIKey == "" {
		sub.APIKey = os.Getenv("VISIONCHAT_API_KEY")
	}
	if req.Image != nil && req.Image.Data != "" {
		img, err := media.DecodeBase64(req.Image.Data, req.Image.MIME)
		if err == nil && int64(len(img.Data)) > cfg.Channels.WebChat.MaxUploadBytes {
			err = media.ErrTooLarge
		}
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, media.ErrUnsupportedType) {
				status = http.StatusUnsupportedMediaType
			} else if errors.Is(err, media.ErrTooLarge) {
				status = http.StatusRequestEntityTooLarge
			}
			return respond(status, map[string]string{"error": chat.UserMessage(err)}), nil
		}
		sub.Image = img
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = chat.DefaultSessionID
	}

	var tr chat.Transcript
	out, err := service.Handle(ctx, sessionID, sub, &tr)
	if err != nil {
		logger.ErrorCF("lambda", "Handling submission failed", map[string]interface{}{"error": err.Error()})
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError}, nil
	}

	resp := askResponse{Path: out.Path, Warning: tr.WarningView().Text}
	if final, ok := tr.Final(); ok {
		if final.Kind == view.KindError {
			resp.Error = final.Text
		} else {
			resp.Response = final.Text
		}
	}
	return respond(http.StatusOK, resp), nil
}

func main() {
	lambda.Start(handler)
}
