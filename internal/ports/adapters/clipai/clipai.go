// Package clipai talks to the clip-analysis service: it uploads a media
// window and gets back candidate moments with optional caption timings.
// The service's model and prompting are its own business; this adapter
// only owns the wire contract.
package clipai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/smartclip/smartclip/internal/ports"
	"github.com/smartclip/smartclip/internal/types"
)

var _ ports.Analyzer = (*Adapter)(nil)

const (
	defaultModel = "gemini-2.5-flash"

	// requestTimeout bounds a single attempt including the media upload.
	requestTimeout = 5 * time.Minute

	maxAttempts = 3
)

type Adapter struct {
	key     string
	model   string
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

func New(apiKey, model, baseURL string, logger zerolog.Logger) *Adapter {
	if model == "" {
		model = defaultModel
	}
	return &Adapter{
		key:     apiKey,
		model:   model,
		baseURL: normalizeBaseURL(baseURL),
		client:  &http.Client{Timeout: requestTimeout},
		log:     logger.With().Str("component", "clipai").Logger(),
	}
}

// statusError marks an HTTP failure so retry logic can tell server-side
// trouble (retryable) from request errors (not).
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("clipai status %d: %s", e.code, e.body)
}

func (e *statusError) retryable() bool { return e.code >= 500 }

// AnalyzeWindow uploads the media at mediaPath and returns the service's
// candidate windows, timestamps relative to the uploaded window's start.
// Transient failures (network, 5xx) are retried with exponential backoff.
func (a *Adapter) AnalyzeWindow(
	ctx context.Context,
	mediaPath string,
	maxCandidates int,
	minDuration time.Duration,
	maxDuration time.Duration,
	language string,
) ([]types.CandidateWindow, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(1<<(attempt-2)) * time.Second
			a.log.Warn().Err(lastErr).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("analysis attempt failed, retrying")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		cands, err := a.analyzeOnce(ctx, mediaPath, maxCandidates, minDuration, maxDuration, language)
		if err == nil {
			return cands, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var se *statusError
		if errors.As(err, &se) && !se.retryable() {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("analysis failed after %d attempts: %w", maxAttempts, lastErr)
}

func (a *Adapter) analyzeOnce(
	ctx context.Context,
	mediaPath string,
	maxCandidates int,
	minDuration, maxDuration time.Duration,
	language string,
) ([]types.CandidateWindow, error) {
	f, err := os.Open(mediaPath)
	if err != nil {
		return nil, fmt.Errorf("open media: %w", err)
	}
	defer f.Close()

	// Stream the upload through a pipe so the media file is never
	// buffered whole in memory.
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := writeForm(mw, f, mediaPath, a.model, maxCandidates, minDuration, maxDuration, language)
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, a.baseURL+"/v1/analyze", pr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+a.key)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("clipai timeout after %s (model=%s)", requestTimeout, a.model)
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read clipai response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &statusError{code: resp.StatusCode, body: truncate(redactSecrets(string(body), a.key), 400)}
	}
	return parseClips(body), nil
}

func writeForm(
	mw *multipart.Writer,
	media io.Reader,
	mediaPath, model string,
	maxCandidates int,
	minDuration, maxDuration time.Duration,
	language string,
) error {
	fields := map[string]string{
		"model":     model,
		"max_clips": strconv.Itoa(maxCandidates),
	}
	if minDuration > 0 {
		fields["min_duration"] = strconv.FormatFloat(minDuration.Seconds(), 'f', -1, 64)
	}
	if maxDuration > 0 {
		fields["max_duration"] = strconv.FormatFloat(maxDuration.Seconds(), 'f', -1, 64)
	}
	if language != "" {
		fields["language"] = language
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}

	part, err := mw.CreateFormFile("media", filepath.Base(mediaPath))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, media)
	return err
}

// parseClips pulls candidate windows out of the response body. Entries
// with a non-positive duration are dropped; everything else is taken on
// trust and validated downstream.
func parseClips(body []byte) []types.CandidateWindow {
	clips := gjson.GetBytes(body, "clips")
	if !clips.IsArray() {
		return nil
	}

	var out []types.CandidateWindow
	clips.ForEach(func(_, clip gjson.Result) bool {
		start := clip.Get("start_time").Float()
		end := clip.Get("end_time").Float()
		if end <= start {
			return true
		}
		cand := types.CandidateWindow{
			Start:       start,
			End:         end,
			Title:       strings.TrimSpace(clip.Get("title").String()),
			Description: strings.TrimSpace(clip.Get("description").String()),
		}
		clip.Get("captions").ForEach(func(_, seg gjson.Result) bool {
			s := seg.Get("start").Float()
			e := seg.Get("end").Float()
			text := strings.TrimSpace(seg.Get("text").String())
			if e > s && text != "" {
				cand.Captions = append(cand.Captions, types.CaptionSegment{Start: s, End: e, Text: text})
			}
			return true
		})
		out = append(out, cand)
		return true
	})
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func redactSecrets(s, apiKey string) string {
	if s == "" {
		return s
	}
	if apiKey != "" {
		s = strings.ReplaceAll(s, apiKey, "[REDACTED]")
	}
	return s
}
