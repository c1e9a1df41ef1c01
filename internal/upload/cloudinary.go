package upload

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/example/plant-identifier/internal/logging"
)

// Transformation asks the host for automatic quality and format selection.
const Transformation = "q_auto:good/f_auto"

// CloudinaryOptions configures a CloudinaryClient.
type CloudinaryOptions struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
	BaseURL   string
	Timeout   time.Duration
}

// CloudinaryClient performs signed uploads against the Cloudinary upload API.
type CloudinaryClient struct {
	opts   CloudinaryOptions
	http   *resty.Client
	logger *zap.Logger
	now    func() time.Time
}

type cloudinaryUploadResponse struct {
	SecureURL string `json:"secure_url"`
	PublicID  string `json:"public_id"`
	Format    string `json:"format"`
	Bytes     int64  `json:"bytes"`
}

type cloudinaryErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// NewCloudinaryClient returns a client that is safe for concurrent use.
func NewCloudinaryClient(opts CloudinaryOptions, logger *zap.Logger) *CloudinaryClient {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.cloudinary.com"
	}
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetHeader("Accept", "application/json")
	if opts.Timeout > 0 {
		httpClient.SetTimeout(opts.Timeout)
	}
	return &CloudinaryClient{
		opts:   opts,
		http:   httpClient,
		logger: logger.Named("cloudinary"),
		now:    time.Now,
	}
}

func (c *CloudinaryClient) Configured() bool {
	return c.opts.CloudName != "" && c.opts.APIKey != "" && c.opts.APISecret != ""
}

// Upload hosts req.DataURI and returns the secure URL. A response without a
// secure URL is returned as is; callers decide whether that is fatal.
func (c *CloudinaryClient) Upload(ctx context.Context, req Request) (*Result, error) {
	params := map[string]string{
		"folder":         c.opts.Folder,
		"public_id":      req.PublicID,
		"overwrite":      "true",
		"transformation": Transformation,
		"timestamp":      strconv.FormatInt(c.now().Unix(), 10),
	}
	if params["folder"] == "" {
		delete(params, "folder")
	}
	params["signature"] = Sign(params, c.opts.APISecret)
	params["api_key"] = c.opts.APIKey
	params["file"] = req.DataURI

	var out cloudinaryUploadResponse
	var apiErr cloudinaryErrorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(params).
		SetError(&apiErr).
		Post(fmt.Sprintf("/v1_1/%s/image/upload", c.opts.CloudName))
	if err != nil {
		wrapped := logging.NewOperationError("upload.cloudinary", req.PublicID, err)
		c.logger.Error("upload request failed", zap.Error(wrapped))
		return nil, wrapped
	}
	if resp.IsError() {
		msg := apiErr.Error.Message
		if msg == "" {
			msg = resp.String()
		}
		wrapped := logging.NewOperationError("upload.cloudinary", req.PublicID,
			fmt.Errorf("cloudinary returned status %d: %s", resp.StatusCode(), msg))
		c.logger.Error("upload rejected", zap.Error(wrapped), zap.Int("status", resp.StatusCode()))
		return nil, wrapped
	}

	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		wrapped := logging.NewOperationError("upload.cloudinary", req.PublicID,
			fmt.Errorf("decode upload response (status %d, content type %q): %w", resp.StatusCode(), resp.Header().Get("Content-Type"), err))
		c.logger.Error("upload response unreadable", zap.Error(wrapped))
		return nil, wrapped
	}

	c.logger.Debug("image hosted",
		zap.String("public_id", out.PublicID),
		zap.Int64("bytes", out.Bytes),
	)
	return &Result{
		SecureURL: out.SecureURL,
		PublicID:  out.PublicID,
		Format:    out.Format,
		Bytes:     out.Bytes,
	}, nil
}

// Sign computes the Cloudinary request signature: the SHA-1 hex digest of the
// parameters sorted by name, joined as k=v with "&", followed by the secret.
// Empty values are skipped.
func Sign(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}
	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + secret))
	return hex.EncodeToString(sum[:])
}
