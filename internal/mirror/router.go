package mirror

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/mirrorctl/mockmirror/internal/artifact"
	"github.com/mirrorctl/mockmirror/internal/growing"
)

const (
	harmPrefix    = "/harm_checksum/"
	growingPrefix = "/static/zchunk/growing_file"
)

type route struct {
	prefix string
	// record adds the request headers to the ledger before handling.
	record bool
	handle func(s *Server, r *http.Request) *result
}

// routes is matched in order against the request path; the first prefix
// match wins. The empty prefix catches everything else.
var routes = []route{
	{"/prev_headers", false, (*Server).prevHeaders},
	{"/clear_prev_headers", false, (*Server).clearPrevHeaders},
	{"/broken_counts/static/", true, (*Server).brokenCounts},
	{"/reset_broken_count", false, (*Server).resetBrokenCount},
	{harmPrefix, true, (*Server).harmChecksum},
	{growingPrefix, true, (*Server).growingFile},
	{"/add_content", false, (*Server).addContent},
	{"/signing_key", false, (*Server).signingKey},
	{"", true, (*Server).static},
}

func lookupRoute(urlPath string) route {
	for _, rt := range routes {
		if strings.HasPrefix(urlPath, rt.prefix) {
			return rt
		}
	}
	// unreachable: the last route has an empty prefix
	return routes[len(routes)-1]
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodHead:
		// HEAD carries no content and is not checked for credentials.
		writeResult(w, okResult(contentTypeHTML, nil))
		return
	default:
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "unsupported method "+r.Method, http.StatusNotImplemented)
		return
	}

	if err := s.auth.Check(r.Header.Get("Authorization")); err != nil {
		writeResult(w, errorResult(err))
		return
	}

	rt := lookupRoute(r.URL.Path)
	if rt.record {
		s.ledger.Record(r)
	}
	writeResult(w, rt.handle(s, r))
}

func (s *Server) prevHeaders(r *http.Request) *result {
	n := 0
	if v := r.URL.Query().Get("n"); v != "" {
		var err error
		n, err = strconv.Atoi(v)
		if err != nil || n < 0 {
			return &result{kind: resultBadRequest}
		}
	}
	data, err := json.Marshal(s.ledger.Headers(n))
	if err != nil {
		return errorResult(err)
	}
	return okResult(contentTypeJSON, data)
}

func (s *Server) clearPrevHeaders(*http.Request) *result {
	s.ledger.Clear()
	return okResult(contentTypeHTML, []byte("OK"))
}

func (s *Server) brokenCounts(r *http.Request) *result {
	if !s.counter.Attempt() {
		slog.Debug("counted failure", "path", r.URL.Path, "count", s.counter.Count())
		return &result{kind: resultNotFound}
	}
	return s.serveAsset(r, false, "")
}

func (s *Server) resetBrokenCount(*http.Request) *result {
	s.counter.Reset()
	return okResult("", nil)
}

// harmChecksum serves /harm_checksum/static/... with the configured
// keyword and /harm_checksum/<keyword>/static/... with the given one.
func (s *Server) harmChecksum(r *http.Request) *result {
	rest := strings.TrimPrefix(r.URL.Path, harmPrefix)
	keyword := s.cfg.Failures.HarmKeyword
	if !strings.HasPrefix(rest, staticDir+"/") {
		keyword, _, _ = strings.Cut(rest, "/")
	}
	return s.serveAsset(r, true, keyword)
}

func (s *Server) growingFile(r *http.Request) *result {
	s.requireGenerator()
	return s.serveAsset(r, false, "")
}

func (s *Server) addContent(r *http.Request) *result {
	g := s.requireGenerator()
	res, err := g.Grow(r.Context())
	if err != nil {
		slog.Error("failed to grow file", "error", err)
		return errorResult(err)
	}
	slog.Info("grew file", "exponent", res.Exponent, "size", res.Size, "success", res.Success)

	data, err := json.Marshal(res)
	if err != nil {
		return errorResult(err)
	}
	return okResult(contentTypeJSON, data)
}

func (s *Server) signingKey(*http.Request) *result {
	if s.signer == nil {
		return &result{kind: resultNotFound}
	}
	return okResult(contentTypeKeys, []byte(s.signer.PublicKey()))
}

// static is the default route. Files in the broken set go through the
// failure injector.
func (s *Server) static(r *http.Request) *result {
	switch s.injector.Decide(r.URL.Path) {
	case DecisionNotFound:
		return &result{kind: resultNotFound}
	case DecisionCorrupt:
		return s.serveAsset(r, true, s.cfg.Failures.HarmKeyword)
	}
	return s.serveAsset(r, false, "")
}

func (s *Server) serveAsset(r *http.Request, corrupt bool, keyword string) *result {
	br, err := ParseByteRange(r.Header.Get("Range"))
	if err != nil {
		return errorResult(err)
	}

	a, err := s.store.Load(r.URL.Path, corrupt, keyword)
	if errors.Is(err, ErrNotFound) {
		if res := s.serveSignature(r.URL.Path, br); res != nil {
			return res
		}
	}
	if err != nil {
		slog.Debug("failed to load asset", "path", r.URL.Path, "error", err)
		return errorResult(err)
	}
	if a.Corrupted {
		slog.Info("serving corrupted asset", "path", a.Path, "sha256", artifact.FromBytes(a.Path, a.Data).SHA256())
	}
	return serveData(a.Data, br)
}

// serveSignature answers a missing <asset>.asc with a signature of <asset>.
// It returns nil when no signature can be made.
func (s *Server) serveSignature(urlPath string, br *ByteRange) *result {
	if s.signer == nil || !strings.HasSuffix(urlPath, signatureExt) {
		return nil
	}
	base := strings.TrimSuffix(urlPath, signatureExt)
	if !s.store.Exists(base) {
		return nil
	}
	a, err := s.store.Load(base, false, "")
	if err != nil {
		return nil
	}
	sig, err := s.signer.Sign(a.Data)
	if err != nil {
		slog.Error("failed to sign asset", "path", a.Path, "error", err)
		return errorResult(err)
	}
	return serveData(sig, br)
}

func (s *Server) requireGenerator() *growing.Generator {
	if s.generator == nil {
		panic(errors.Mark(errors.New("growing file routes require a [growing] content path or random source"), ErrMisconfigured))
	}
	return s.generator
}
