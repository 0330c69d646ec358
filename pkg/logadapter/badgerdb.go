// Package logadapter bridges third-party logger interfaces onto zap.
package logadapter

import "go.uber.org/zap"

// Badger2Zap satisfies badger's Logger interface. Badger expects the
// SugaredLogger method set plus Warningf.
type Badger2Zap struct {
	*zap.SugaredLogger
}

func NewBadger2Zap(logger *zap.Logger) *Badger2Zap {
	return &Badger2Zap{
		SugaredLogger: logger.Named("badger").Sugar(),
	}
}

func (l *Badger2Zap) Warningf(template string, args ...interface{}) {
	l.Warnf(template, args...)
}
