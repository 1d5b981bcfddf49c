// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package peerrpc

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/bureau-foundation/monovault/lib/codec"
	"github.com/bureau-foundation/monovault/lib/vault"
	"github.com/bureau-foundation/monovault/lib/version"
)

// maxRequestBytes bounds request bodies. Requests are small; only
// responses carry content.
const maxRequestBytes = 1 << 20

// NewHandler exposes service on the four peer RPC paths.
func NewHandler(service Service, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	mux := http.NewServeMux()
	mux.Handle("POST "+PathPull, handle(logger, service.Pull))
	mux.Handle("POST "+PathFetch, handle(logger, service.Fetch))
	mux.Handle("POST "+PathBlob, handle(logger, service.Blob))
	mux.Handle("POST "+PathNotify, handle(logger, func(ctx context.Context, request *NotifyRequest) (*struct{}, error) {
		return &struct{}{}, service.Notify(ctx, request)
	}))
	return mux
}

func handle[Request, Response any](logger *slog.Logger, call func(context.Context, *Request) (*Response, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if protocol := r.Header.Get(ProtocolHeader); protocol != version.ProtocolString {
			writeError(w, logger, r, http.StatusBadRequest, vault.CodeIO,
				fmt.Errorf("caller speaks protocol %q, this node speaks %s", protocol, version.ProtocolString))
			return
		}
		var request Request
		if err := codec.NewDecoder(io.LimitReader(r.Body, maxRequestBytes)).Decode(&request); err != nil {
			writeError(w, logger, r, http.StatusBadRequest, vault.CodeIO, fmt.Errorf("decoding request: %w", err))
			return
		}
		response, err := call(r.Context(), &request)
		if err != nil {
			code := vault.CodeOf(err)
			writeError(w, logger, r, statusFor(code), code, err)
			return
		}
		body, err := codec.Marshal(response)
		if err != nil {
			writeError(w, logger, r, http.StatusInternalServerError, vault.CodeIO, fmt.Errorf("encoding response: %w", err))
			return
		}
		w.Header().Set("Content-Type", ContentType)
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	})
}

func writeError(w http.ResponseWriter, logger *slog.Logger, r *http.Request, status int, code vault.Code, err error) {
	if status >= http.StatusInternalServerError {
		logger.Warn("peer rpc failed", "path", r.URL.Path, "remote", r.RemoteAddr, "error", err)
	}
	body, marshalErr := codec.Marshal(ErrorResponse{Code: code, Message: err.Error()})
	if marshalErr != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(status)
	w.Write(body)
}

func statusFor(code vault.Code) int {
	switch code {
	case vault.CodeNotFound:
		return http.StatusNotFound
	case vault.CodePermissionDenied:
		return http.StatusForbidden
	case vault.CodeInvalidPath, vault.CodeNameTooLong:
		return http.StatusBadRequest
	case vault.CodeFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case vault.CodeConflict:
		return http.StatusConflict
	case vault.CodeUnreachable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
