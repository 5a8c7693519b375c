package logging

import (
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"grimm.is/fwrules/internal/brand"
)

// SyslogConfig holds remote syslog server configuration.
type SyslogConfig struct {
	Host     string // Remote syslog server hostname or IP
	Port     int    // default 514
	Protocol string // udp or tcp (default: udp)
	Tag      string // default: brand.LowerName
	Facility int    // default 1 (user)
}

// DefaultSyslogConfig returns sensible defaults.
func DefaultSyslogConfig() SyslogConfig {
	return SyslogConfig{
		Port:     514,
		Protocol: "udp",
		Tag:      brand.LowerName,
		Facility: 1, // LOG_USER
	}
}

// SyslogWriter implements io.Writer and sends each write as one RFC 3164
// message to a remote syslog server.
type SyslogWriter struct {
	mu       sync.Mutex
	conn     net.Conn
	config   SyslogConfig
	hostname string
	dial     func(network, addr string) (net.Conn, error)
}

// NewSyslogWriter creates a new syslog writer.
func NewSyslogWriter(cfg SyslogConfig) (*SyslogWriter, error) {
	return newSyslogWriter(cfg, func(network, addr string) (net.Conn, error) {
		return net.DialTimeout(network, addr, 5*time.Second)
	})
}

func newSyslogWriter(cfg SyslogConfig, dial func(network, addr string) (net.Conn, error)) (*SyslogWriter, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("syslog host is required")
	}
	def := DefaultSyslogConfig()
	if cfg.Port == 0 {
		cfg.Port = def.Port
	}
	if cfg.Protocol == "" {
		cfg.Protocol = def.Protocol
	}
	if cfg.Tag == "" {
		cfg.Tag = def.Tag
	}
	if cfg.Facility == 0 {
		cfg.Facility = def.Facility
	}

	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = brand.LowerName
	}

	w := &SyslogWriter{config: cfg, hostname: hostname, dial: dial}
	if err := w.connect(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *SyslogWriter) addr() string {
	return net.JoinHostPort(w.config.Host, fmt.Sprint(w.config.Port))
}

func (w *SyslogWriter) connect() error {
	conn, err := w.dial(w.config.Protocol, w.addr())
	if err != nil {
		return fmt.Errorf("failed to connect to syslog server %s: %w", w.addr(), err)
	}
	w.conn = conn
	return nil
}

// Write implements io.Writer.
// Format: <priority>timestamp hostname tag: message
func (w *SyslogWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		if err := w.connect(); err != nil {
			return 0, err
		}
	}

	// Priority = facility * 8 + severity (6 = informational)
	priority := w.config.Facility*8 + 6
	msg := fmt.Sprintf("<%d>%s %s %s: %s", priority, time.Now().Format(time.Stamp), w.hostname, w.config.Tag, p)

	if _, err := w.conn.Write([]byte(msg)); err != nil {
		// Reconnect on the next write.
		w.conn.Close()
		w.conn = nil
		return 0, err
	}
	return len(p), nil
}

// Close closes the syslog connection.
func (w *SyslogWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn != nil {
		err := w.conn.Close()
		w.conn = nil
		return err
	}
	return nil
}
