// Copyright (c) 2021 PaddlePaddle Authors. All Rights Reserved.
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logging installs the process log of a party: records are written to
// an hourly rotated file, optionally mirrored to stderr.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/sirupsen/logrus"

	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/config"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/errorx"
)

const (
	TimeFormat   = "2006-01-02 15:04:05"
	DefaultLevel = logrus.InfoLevel

	defaultMaxAge       = 720 * time.Hour
	defaultRotationTime = time.Hour
)

// Logging is the parsed form of a log section
type Logging struct {
	Level     logrus.Level
	Formatter logrus.Formatter
	Writer    io.Writer
}

type options struct {
	dir          string
	level        logrus.Level
	json         bool
	maxAge       time.Duration
	rotationTime time.Duration
}

// InitLog validates conf and opens the rotated file fileName under conf.Path.
// When isSetFormat is false the formatter of the standard logger is left alone.
func InitLog(conf *config.Log, fileName string, isSetFormat bool) (*Logging, error) {
	opts, err := parse(conf)
	if err != nil {
		return nil, errorx.Wrap(err, "check log conf error")
	}
	if err := os.MkdirAll(opts.dir, 0777); err != nil {
		return nil, errorx.New(errcodes.ErrCodeConfig, "mkdir logs error, err :%v", err)
	}

	name := filepath.Join(opts.dir, fileName)
	// the link always points at the current file
	file, err := rotatelogs.New(
		name+".%Y%m%d%H",
		rotatelogs.WithLinkName(name),
		rotatelogs.WithMaxAge(opts.maxAge),
		rotatelogs.WithRotationTime(opts.rotationTime),
	)
	if err != nil {
		return nil, errorx.NewCode(err, errcodes.ErrCodeInternal, "new rotatelogs error")
	}

	l := &Logging{Level: opts.level, Writer: file}
	if conf.Console {
		l.Writer = io.MultiWriter(file, os.Stderr)
	}
	if isSetFormat {
		if opts.json {
			l.Formatter = &logrus.JSONFormatter{TimestampFormat: TimeFormat}
		} else {
			l.Formatter = &logrus.TextFormatter{
				ForceColors:     true,
				FullTimestamp:   true,
				TimestampFormat: TimeFormat,
			}
		}
	}
	return l, nil
}

func parse(conf *config.Log) (*options, error) {
	if conf == nil {
		return nil, errorx.New(errcodes.ErrCodeConfig, "missing config: log")
	}
	if conf.Path == "" {
		return nil, errorx.New(errcodes.ErrCodeConfig, "missing config: log.path")
	}
	opts := &options{
		dir:          filepath.Clean(conf.Path),
		level:        DefaultLevel,
		maxAge:       defaultMaxAge,
		rotationTime: defaultRotationTime,
	}

	if conf.Level != "" {
		level, err := logrus.ParseLevel(conf.Level)
		if err != nil {
			return nil, errorx.New(errcodes.ErrCodeConfig, "invalid log.level %q", conf.Level)
		}
		opts.level = level
	}

	switch strings.ToLower(conf.Format) {
	case "", "text":
	case "json":
		opts.json = true
	default:
		return nil, errorx.New(errcodes.ErrCodeConfig, "invalid log.format %q, want text or json", conf.Format)
	}

	for _, d := range []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"log.maxAge", conf.MaxAge, &opts.maxAge},
		{"log.rotationTime", conf.RotationTime, &opts.rotationTime},
	} {
		if d.value == "" {
			continue
		}
		v, err := time.ParseDuration(d.value)
		if err != nil || v <= 0 {
			return nil, errorx.New(errcodes.ErrCodeConfig, "invalid %s %q", d.name, d.value)
		}
		*d.dst = v
	}
	if opts.rotationTime > opts.maxAge {
		return nil, errorx.New(errcodes.ErrCodeConfig, "log.rotationTime exceeds log.maxAge")
	}
	return opts, nil
}

// Apply installs l on the logrus standard logger
func (l *Logging) Apply() {
	logrus.SetLevel(l.Level)
	logrus.SetOutput(l.Writer)
	if l.Formatter != nil {
		logrus.SetFormatter(l.Formatter)
	}
}
