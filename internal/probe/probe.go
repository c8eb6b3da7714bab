package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sourcegraph/conc/iter"

	"github.com/codeqa/codeqa/internal/config"
	"github.com/codeqa/codeqa/internal/logging"
	"github.com/codeqa/codeqa/internal/report"
)

const (
	ErrorClassTimeout           = "timeout"
	ErrorClassConnectionRefused = "connection_refused"
	ErrorClassDNS               = "dns"
	ErrorClassNetwork           = "network"

	maxBodyBytes = 64 * 1024
)

var frameworkMarkers = []struct {
	name   string
	marker string
}{
	{"react", "react"},
	{"vue", "vue"},
	{"angular", "angular"},
	{"html", "<html"},
}

// Prober checks whether HTTP services answer on local ports. It never retries
// and never returns an error; failures are recorded on the result.
type Prober struct {
	config *config.ProbeConfig
	client *http.Client
	logger logging.Logger
}

func NewProber(cfg *config.ProbeConfig, logger logging.Logger) *Prober {
	return &Prober{
		config: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logging.OrNoOp(logger),
	}
}

// Probe issues one GET per port with at most Parallelism requests in flight.
// Results follow the order of ports.
func (p *Prober) Probe(ctx context.Context, ports []int) []report.ProbeResult {
	if len(ports) == 0 {
		return []report.ProbeResult{}
	}

	mapper := iter.Mapper[int, report.ProbeResult]{MaxGoroutines: p.config.Parallelism}
	return mapper.Map(ports, func(port *int) report.ProbeResult {
		return p.probePort(ctx, *port)
	})
}

// URL builds the address probed for port.
func (p *Prober) URL(port int) string {
	path := p.config.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return "http://" + net.JoinHostPort(p.config.Host, strconv.Itoa(port)) + path
}

func (p *Prober) probePort(ctx context.Context, port int) report.ProbeResult {
	result := report.ProbeResult{
		Port: port,
		URL:  p.URL(port),
	}

	if port < 1 || port > 65535 {
		result.Error = fmt.Sprintf("invalid port %d", port)
		result.ErrorClass = ErrorClassNetwork
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, result.URL, nil)
	if err != nil {
		result.Error = fmt.Sprintf("failed to create request: %v", err)
		result.ErrorClass = ErrorClassNetwork
		return result
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		result.Error = err.Error()
		result.ErrorClass = ClassifyError(err)
		p.logger.Debug("probe failed", logging.F("url", result.URL), logging.F("class", result.ErrorClass), logging.Err(err))
		return result
	}
	//nolint:errcheck // Defer close on HTTP response body
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	latency := roundMillis(time.Since(start))

	result.Reachable = true
	result.StatusCode = resp.StatusCode
	result.LatencyMS = &latency
	result.ContentType = resp.Header.Get("Content-Type")
	result.Frameworks = DetectFrameworks(body)
	if readErr != nil {
		p.logger.Debug("failed to read probe body", logging.F("url", result.URL), logging.Err(readErr))
	}

	p.logger.Debug("probe succeeded", logging.F("url", result.URL), logging.F("status", resp.StatusCode), logging.F("latency_ms", latency))
	return result
}

// ClassifyError maps a transport error onto one of the error classes.
func ClassifyError(err error) string {
	var dnsErr *net.DNSError
	var netErr net.Error

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorClassTimeout
	case errors.As(err, &dnsErr):
		if dnsErr.IsTimeout {
			return ErrorClassTimeout
		}
		return ErrorClassDNS
	case errors.Is(err, syscall.ECONNREFUSED):
		return ErrorClassConnectionRefused
	case errors.As(err, &netErr) && netErr.Timeout():
		return ErrorClassTimeout
	default:
		return ErrorClassNetwork
	}
}

// DetectFrameworks looks for framework names in a response body.
func DetectFrameworks(body []byte) []string {
	content := strings.ToLower(string(body))

	var frameworks []string
	for _, framework := range frameworkMarkers {
		if strings.Contains(content, framework.marker) {
			frameworks = append(frameworks, framework.name)
		}
	}
	return frameworks
}

func roundMillis(d time.Duration) float64 {
	return math.Round(float64(d.Microseconds())/10) / 100
}
