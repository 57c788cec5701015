// Package analyzer calls the external modality analyzers (transcription,
// emotion, tone and posture) over HTTP.
package analyzer

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/interview-scorer/internal/logger"
	"github.com/spigell/interview-scorer/internal/normalize"
	"github.com/spigell/interview-scorer/internal/utils"
)

// Modality names one analyzer.
type Modality string

const (
	Transcription Modality = "transcription"
	Emotion       Modality = "emotion"
	Tone          Modality = "tone"
	Posture       Modality = "posture"
)

const (
	userAgent       = "interview-scorer"
	contentEncoding = "gzip"
	fileField       = "file"
	defaultTimeout  = 60 * time.Second
	maxErrorBody    = 512
)

// Config holds the analyzer endpoints. Empty endpoints are not configured.
type Config struct {
	Transcription string        `mapstructure:"transcription"`
	Emotion       string        `mapstructure:"emotion"`
	Tone          string        `mapstructure:"tone"`
	Posture       string        `mapstructure:"posture"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// Client uploads media to the analyzers. Its results are always maps with a
// "success" key; failures never surface as errors so that scoring can
// substitute defaults.
type Client struct {
	endpoints  map[Modality]string
	logger     *zap.Logger
	HTTPClient *http.Client
	UserAgent  string
}

func New(cfg Config, log *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	endpoints := make(map[Modality]string)
	for m, url := range map[Modality]string{
		Transcription: cfg.Transcription,
		Emotion:       cfg.Emotion,
		Tone:          cfg.Tone,
		Posture:       cfg.Posture,
	} {
		if url = strings.TrimSpace(url); url != "" {
			endpoints[m] = url
		}
	}

	return &Client{
		endpoints: endpoints,
		logger:    logger.WithFields(log, zap.String("component", "analyzer")),
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		UserAgent: userAgent,
	}
}

// Configured lists the modalities that have an endpoint.
func (c *Client) Configured() []Modality {
	out := make([]Modality, 0, len(c.endpoints))
	for m := range c.endpoints {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Analyze uploads media as the "file" form field, together with fields, and
// returns the analyzer result.
func (c *Client) Analyze(ctx context.Context, m Modality, filename string, media io.Reader, fields map[string]string) map[string]any {
	endpoint, ok := c.endpoints[m]
	if !ok {
		return Failure(fmt.Errorf("%s analyzer is not configured", m))
	}

	result, err := c.postFile(ctx, endpoint, filename, media, fields)
	if err != nil {
		c.logger.Warn("analyzer call failed", zap.String("modality", string(m)), zap.Error(err))
		return Failure(err)
	}

	if _, ok := result["success"]; !ok {
		result["success"] = true
	}
	return result
}

// Failure is the result reported for an analyzer that could not be used.
func Failure(err error) map[string]any {
	return map[string]any{"success": false, "error": err.Error()}
}

func (c *Client) postFile(ctx context.Context, url, filename string, media io.Reader, fields map[string]string) (map[string]any, error) {
	if media == nil {
		return nil, errors.New("no media provided")
	}
	if filename = strings.TrimSpace(filename); filename == "" {
		filename = "upload"
	}

	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	for key, val := range fields {
		field, err := w.CreateFormField(key)
		if err != nil {
			return nil, err
		}
		if _, err = io.Copy(field, strings.NewReader(val)); err != nil {
			return nil, err
		}
	}

	part, err := w.CreateFormFile(fileField, filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, media); err != nil {
		return nil, fmt.Errorf("copy media: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &b)
	if err != nil {
		return nil, err
	}

	req = c.setHeaders(req)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.request(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := readBody(resp)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad status: %s: %s", resp.Status, utils.TruncateForLog(string(data), maxErrorBody))
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var result map[string]any
	if err := decoder.Decode(&result); err != nil {
		return nil, fmt.Errorf("decode analyzer response: %w", err)
	}
	if result == nil {
		return nil, errors.New("analyzer returned an empty body")
	}

	return normalize.PlainMap(result), nil
}

func (c *Client) request(req *http.Request) (*http.Response, error) {
	c.logger.Debug("make request", zap.String("url", req.URL.String()))
	return c.HTTPClient.Do(req)
}

func (c *Client) setHeaders(req *http.Request) *http.Request {
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", contentEncoding)

	return req
}

func readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gzipReader.Close()
		reader = gzipReader
	}
	return io.ReadAll(reader)
}
