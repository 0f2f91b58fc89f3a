package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Supported encodings.
const (
	EncodingConsole = "console"
	EncodingJSON    = "json"
)

// Prm groups logger parameters. Zero value is info level console logger.
type Prm struct {
	level    zapcore.Level
	encoding string
}

// SetLevelString sets minimal level from its name: debug, info, warn or
// error. Empty name means info.
func (p *Prm) SetLevelString(s string) error {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return err
	}
	if lvl > zapcore.ErrorLevel {
		return fmt.Errorf("unsupported logger level %q", s)
	}
	p.level = lvl
	return nil
}

// SetEncoding sets output encoding, console or json.
func (p *Prm) SetEncoding(s string) error {
	switch e := strings.ToLower(s); e {
	case EncodingConsole, EncodingJSON:
		p.encoding = e
		return nil
	default:
		return fmt.Errorf("unsupported logger encoding %q", s)
	}
}

// NewLogger builds production logger writing to stderr. Stack traces are
// attached to fatal records only.
func NewLogger(prm *Prm) (*zap.Logger, error) {
	if prm == nil {
		prm = new(Prm)
	}

	c := zap.NewProductionConfig()
	c.Level = zap.NewAtomicLevelAt(prm.level)
	c.Encoding = EncodingConsole
	if prm.encoding != "" {
		c.Encoding = prm.encoding
	}
	c.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := c.Build(zap.AddStacktrace(zap.NewAtomicLevelAt(zap.FatalLevel)))
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}
	return l, nil
}
