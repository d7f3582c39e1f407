// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"log/slog"

	"github.com/AleutianAI/tsdagger/services/dagger"
	"github.com/AleutianAI/tsdagger/services/dagger/component"
	"github.com/AleutianAI/tsdagger/services/dagger/config"
	"github.com/AleutianAI/tsdagger/services/dagger/graph"
)

// Component IDs of the HTTP service.
const (
	idConfig    component.ID = "Config"
	idLogger    component.ID = "Logger"
	idSnapshots component.ID = "SnapshotManager"
	idService   component.ID = "Service"
	idHandlers  component.ID = "Handlers"
	idRouter    component.ID = "Router"
)

// serviceComponents declares the HTTP service's object graph. Snapshot
// stores opened during construction are appended to closers.
func serviceComponents(a *app, withSnapshots bool, closers *[]func() error) *component.Registry {
	reg := component.NewRegistry()

	reg.Declare(idConfig).Constructs(func(...any) (any, error) {
		return a.cfg, nil
	})
	reg.Declare(idLogger).Constructs(func(...any) (any, error) {
		return a.logger, nil
	})

	reg.Declare(idSnapshots).
		DependsOn(idConfig, idLogger).
		Constructs(func(deps ...any) (any, error) {
			if !withSnapshots {
				return (*graph.SnapshotManager)(nil), nil
			}
			cfg := deps[0].(*config.Config)
			mgr, closeDB, err := graph.OpenSnapshotManager(cfg.Snapshot.Dir, deps[1].(*slog.Logger))
			if err != nil {
				return nil, err
			}
			*closers = append(*closers, closeDB)
			return mgr, nil
		})

	reg.Declare(idService).
		DependsOn(idConfig, idLogger, idSnapshots).
		Constructs(func(deps ...any) (any, error) {
			opts := []dagger.ServiceOption{dagger.WithServiceLogger(deps[1].(*slog.Logger))}
			if mgr := deps[2].(*graph.SnapshotManager); mgr != nil {
				opts = append(opts, dagger.WithSnapshotManager(mgr))
			}
			return dagger.NewService(deps[0].(*config.Config), opts...)
		})

	reg.Declare(idHandlers).
		DependsOn(idService).
		Constructs(func(deps ...any) (any, error) {
			return dagger.NewHandlers(deps[0].(*dagger.Service)), nil
		})

	reg.Declare(idRouter).
		DependsOn(idHandlers, idConfig).
		Constructs(func(deps ...any) (any, error) {
			return dagger.NewRouter(deps[0].(*dagger.Handlers), deps[1].(*config.Config).Server.Debug), nil
		})

	return reg
}
