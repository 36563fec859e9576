package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"tftpanel/internal/battery"
	"tftpanel/internal/config"
	"tftpanel/internal/convert"
	appLog "tftpanel/internal/log"
	"tftpanel/internal/screen"
	"tftpanel/internal/tft"
)

var log = appLog.Named("web")

// Previewer renders what the glass currently shows. The simulator
// implements it; real hardware has no read-back.
type Previewer interface {
	Snapshot() *image.RGBA
}

// Options wires the server to the rest of the application. Only Screen is
// required.
type Options struct {
	Screen    *screen.Screen
	BasicAuth *config.BasicAuthConfig

	// Refresh re-runs the pipeline for POST /api/refresh.
	Refresh func(ctx context.Context) error
	// Preview enables GET /preview.png.
	Preview Previewer
	// Battery enables GET /api/battery.
	Battery battery.Reader
}

// Server provides the HTTP control API for the panel.
type Server struct {
	opts Options
	mux  *http.ServeMux

	// In-memory cache for battery status. This avoids hitting I2C (or
	// even the mock) on every single HTTP call.
	batteryMu    sync.RWMutex
	batteryCache *batteryCache
}

// NewServer constructs a new Server.
func NewServer(opts Options) *Server {
	s := &Server{
		opts: opts,
		mux:  http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		return s.basicAuthMiddleware(h)
	}
	return h
}

// Serve listens on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting HTTP server", "listen", "http://"+addr, "basic_auth", s.basicAuthEnabled())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("web: listen %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("web: shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info("HTTP server stopped")
	return nil
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	ba := s.opts.BasicAuth
	// Empty username or password counts as disabled.
	return ba != nil && ba.Username != "" && ba.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.opts.BasicAuth.Username
	password := s.opts.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="tftpanel", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/panel", s.handlePanel)
	s.mux.HandleFunc("POST /api/pixel", s.handlePixel)
	s.mux.HandleFunc("POST /api/fill", s.handleFill)
	s.mux.HandleFunc("POST /api/image", s.handleImage)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	if s.opts.Battery != nil {
		s.mux.HandleFunc("GET /api/battery", s.handleBattery)
	}
	if s.opts.Preview != nil {
		s.mux.HandleFunc("GET /preview.png", s.handlePreview)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// panelResponse is the JSON response shape for /api/panel.
type panelResponse struct {
	BitDepth    int    `json:"bit_depth"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	OffsetX     int    `json:"offset_x"`
	OffsetY     int    `json:"offset_y"`
	Orientation string `json:"orientation"`
}

func (s *Server) handlePanel(w http.ResponseWriter, _ *http.Request) {
	info := s.opts.Screen.Info()
	writeJSON(w, http.StatusOK, panelResponse{
		BitDepth:    info.BitDepth,
		Width:       info.Width,
		Height:      info.Height,
		OffsetX:     info.Offset.X,
		OffsetY:     info.Offset.Y,
		Orientation: info.Orientation.String(),
	})
}

// Color is an RGB565 word in JSON: either a number (63488) or a string,
// "#rrggbb" for 24-bit RGB or "0xF800" for a raw word.
type Color uint16

func (c *Color) UnmarshalJSON(b []byte) error {
	var n uint16
	if err := json.Unmarshal(b, &n); err == nil {
		*c = Color(n)
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return fmt.Errorf("color must be a number or a string")
	}
	v, err := parseColor(str)
	if err != nil {
		return err
	}
	*c = v
	return nil
}

func parseColor(s string) (Color, error) {
	switch {
	case strings.HasPrefix(s, "#") && len(s) == 7:
		rgb, err := strconv.ParseUint(s[1:], 16, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid color %q", s)
		}
		return Color(convert.RGB565(uint8(rgb>>16), uint8(rgb>>8), uint8(rgb))), nil
	case strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X"):
		v, err := strconv.ParseUint(s[2:], 16, 16)
		if err != nil {
			return 0, fmt.Errorf("invalid color %q", s)
		}
		return Color(v), nil
	}
	return 0, fmt.Errorf("invalid color %q", s)
}

type pixelRequest struct {
	X     *int  `json:"x"`
	Y     *int  `json:"y"`
	Color Color `json:"color"`
}

func (s *Server) handlePixel(w http.ResponseWriter, r *http.Request) {
	var req pixelRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.X == nil || req.Y == nil {
		writeError(w, http.StatusBadRequest, "x and y are required")
		return
	}
	if err := s.opts.Screen.Pixel(*req.X, *req.Y, uint16(req.Color)); err != nil {
		s.writePanelError(w, "pixel", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// fillRequest coordinates are inclusive. Omitting all four fills the panel.
type fillRequest struct {
	Color Color `json:"color"`
	X0    *int  `json:"x0"`
	Y0    *int  `json:"y0"`
	X1    *int  `json:"x1"`
	Y1    *int  `json:"y1"`
}

func (s *Server) handleFill(w http.ResponseWriter, r *http.Request) {
	var req fillRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	bounds := s.opts.Screen.Info().Bounds()
	rect := bounds
	switch countSet(req.X0, req.Y0, req.X1, req.Y1) {
	case 0:
	case 4:
		if *req.X1 < *req.X0 || *req.Y1 < *req.Y0 {
			writeError(w, http.StatusBadRequest, "x1/y1 must not be less than x0/y0")
			return
		}
		rect = image.Rect(*req.X0, *req.Y0, *req.X1+1, *req.Y1+1)
		if !rect.In(bounds) {
			s.writePanelError(w, "fill", tft.ErrOutOfBounds)
			return
		}
	default:
		writeError(w, http.StatusBadRequest, "give all of x0, y0, x1, y1 or none")
		return
	}

	if err := s.opts.Screen.FillRect(rect, uint16(req.Color)); err != nil {
		s.writePanelError(w, "fill", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// maxImageBytes bounds POST /api/image bodies.
const maxImageBytes = 8 << 20

// handleImage shows an uploaded PNG, JPEG or GIF scaled to the panel.
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	img, format, err := image.Decode(http.MaxBytesReader(w, r.Body, maxImageBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid image: "+err.Error())
		return
	}
	if err := s.opts.Screen.Image(img); err != nil {
		s.writePanelError(w, "image", err)
		return
	}
	log.Info("image uploaded", "format", format, "size", img.Bounds().Size())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.opts.Refresh == nil {
		writeError(w, http.StatusNotImplemented, "refresh not configured")
		return
	}
	if err := s.opts.Refresh(r.Context()); err != nil {
		s.writePanelError(w, "refresh", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// batteryCache holds the last known battery status and its timestamp.
type batteryCache struct {
	status    battery.Status
	updatedAt time.Time
}

// handleBattery exposes the current battery status. Battery status does not
// need sub-second precision, so a short TTL cache is sufficient.
func (s *Server) handleBattery(w http.ResponseWriter, r *http.Request) {
	const batteryCacheTTL = 30 * time.Second

	s.batteryMu.RLock()
	bc := s.batteryCache
	s.batteryMu.RUnlock()
	if bc != nil && time.Since(bc.updatedAt) < batteryCacheTTL {
		writeJSON(w, http.StatusOK, bc.status)
		return
	}

	status, err := s.opts.Battery.Read(r.Context())
	if err != nil {
		log.Error("battery read failed", err)
		writeError(w, http.StatusBadGateway, "failed to read battery")
		return
	}

	s.batteryMu.Lock()
	s.batteryCache = &batteryCache{status: status, updatedAt: time.Now()}
	s.batteryMu.Unlock()

	writeJSON(w, http.StatusOK, status)
}

// handlePreview encodes the simulator's current glass as PNG.
func (s *Server) handlePreview(w http.ResponseWriter, _ *http.Request) {
	img := s.opts.Preview.Snapshot()
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := png.Encode(w, img); err != nil {
		log.Error("failed to encode preview", err)
	}
}

// writePanelError maps panel errors to status codes: caller mistakes are
// 400, an unready panel 503, anything from the controller 502.
func (s *Server) writePanelError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, tft.ErrOutOfBounds):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, tft.ErrNotReady):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		log.Error("panel operation failed", err, "op", op)
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

func countSet(ps ...*int) int {
	n := 0
	for _, p := range ps {
		if p != nil {
			n++
		}
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
