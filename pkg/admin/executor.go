// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package admin

import (
	"errors"
	"fmt"
	"log/slog"

	perrors "github.com/absmach/xmpproxy/pkg/errors"
	"github.com/absmach/xmpproxy/pkg/filter"
	"github.com/absmach/xmpproxy/pkg/metrics"
	"github.com/absmach/xmpproxy/pkg/policy"
)

// Commands understood by the admin channel.
const (
	CmdSilenceUser    = "silenceuser"
	CmdUnsilenceUser  = "unsilenceuser"
	CmdTransformation = "transformation"
	CmdStats          = "stats"
)

// Response statuses.
const (
	StatusOK    = "OK"
	StatusError = "ERROR"
)

var (
	errEmptyValue      = errors.New("empty value")
	errAlreadySilenced = errors.New("user already silenced")
	errNotSilenced     = errors.New("user not silenced")
	errBadSwitch       = errors.New("value must be on or off")
)

// Request is one admin command.
type Request struct {
	Type  string `json:"type"`
	Value string `json:"value"`

	// Remote is the address of the admin client, filled in by the server.
	Remote string `json:"-"`
}

// Response answers one Request.
type Response struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Report is the payload of the stats command.
type Report struct {
	Statistics filter.Stats      `json:"statistics"`
	Silenced   []string          `json:"silenced"`
	Settings   map[string]string `json:"settings"`
}

// Executor applies admin commands to the policy store and the live filters.
type Executor struct {
	store   *policy.Store
	silence *filter.Silence
	stats   *filter.Statistics
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewExecutor creates an executor. stats and m may be nil.
func NewExecutor(store *policy.Store, silence *filter.Silence, stats *filter.Statistics, m *metrics.Metrics, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		store:   store,
		silence: silence,
		stats:   stats,
		metrics: m,
		logger:  logger,
	}
}

// Execute runs req. A failed command leaves every setting untouched.
func (e *Executor) Execute(req Request) Response {
	data, err := e.run(req)

	status := StatusOK
	if err != nil {
		status = StatusError
	}
	if e.metrics != nil {
		e.metrics.AdminCommands.WithLabelValues(commandLabel(req.Type), status).Inc()
	}

	if err != nil {
		e.logger.Warn("admin command failed",
			slog.String("command", req.Type),
			slog.String("value", req.Value),
			slog.String("error", err.Error()))
		return Response{Status: StatusError, Message: err.Error()}
	}
	e.logger.Info("admin command executed",
		slog.String("command", req.Type),
		slog.String("value", req.Value))
	return Response{Status: StatusOK, Data: data}
}

func (e *Executor) run(req Request) (any, error) {
	switch req.Type {
	case CmdSilenceUser:
		if req.Value == "" {
			return nil, invalid(req, errEmptyValue)
		}
		if !e.store.AppendUnique(policy.KeySilencedUsers, req.Value) {
			return nil, invalid(req, errAlreadySilenced)
		}
		e.silence.Silence(req.Value)
		return nil, nil

	case CmdUnsilenceUser:
		if req.Value == "" {
			return nil, invalid(req, errEmptyValue)
		}
		if err := e.store.RemoveFromList(req.Value); err != nil {
			if errors.Is(err, policy.ErrNotFound) {
				err = errNotSilenced
			}
			return nil, invalid(req, err)
		}
		e.silence.Unsilence(req.Value)
		return nil, nil

	case CmdTransformation:
		if req.Value != filter.TransformOn && req.Value != filter.TransformOff {
			return nil, invalid(req, errBadSwitch)
		}
		e.store.Set(policy.KeyTransformation, req.Value)
		return nil, nil

	case CmdStats:
		r := Report{
			Silenced: e.silence.Users(),
			Settings: e.store.Snapshot(),
		}
		if e.stats != nil {
			r.Statistics = e.stats.Snapshot()
		}
		return r, nil

	default:
		return nil, perrors.New(fmt.Sprintf("command %q", req.Type), "admin", "", req.Remote, perrors.ErrUnknownCommand)
	}
}

func invalid(req Request, err error) error {
	return perrors.New(req.Type, "admin", "", req.Remote, fmt.Errorf("%w: %w", perrors.ErrInvalidInput, err))
}

// commandLabel bounds the metric label set to known commands.
func commandLabel(cmd string) string {
	switch cmd {
	case CmdSilenceUser, CmdUnsilenceUser, CmdTransformation, CmdStats:
		return cmd
	default:
		return "unknown"
	}
}
