package logger

import (
	"time"

	"go.uber.org/zap"
)

// HTTP

func RequestID(v string) zap.Field       { return zap.String("request_id", v) }
func Method(v string) zap.Field          { return zap.String("method", v) }
func Path(v string) zap.Field            { return zap.String("path", v) }
func Status(v int) zap.Field             { return zap.Int("status", v) }
func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }

// Signature protocol

func InstanceID(v string) zap.Field { return zap.String("instance_id", v) }
func Field(v string) zap.Field      { return zap.String("signature_field", v) }
func Algorithm(v string) zap.Field  { return zap.String("algorithm", v) }
func Subject(v string) zap.Field    { return zap.String("subject", v) }

// System

func Component(v string) zap.Field { return zap.String("component", v) }
func Op(v string) zap.Field        { return zap.String("op", v) }
func Err(err error) zap.Field      { return zap.Error(err) }
func Count(v int) zap.Field        { return zap.Int("count", v) }
