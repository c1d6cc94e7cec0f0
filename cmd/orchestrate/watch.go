// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// watchManifest watches path for writes and calls onChange for each
// one, until ctx is cancelled. Unlike pkg/config's Watcher (which
// reloads a typed Options value), the manifest's re-run side effect
// lives in the caller, so this is a thinner wrapper directly over
// fsnotify rather than a second generic file-watcher abstraction.
func watchManifest(ctx context.Context, path string, onChange func()) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch manifest: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(path); err != nil {
		return fmt.Errorf("watch manifest %s: %w", path, err)
	}

	slog.Info("orchestrate: watching manifest for changes", "path", path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			slog.Info("orchestrate: manifest changed, re-running", "path", path)
			onChange()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("orchestrate: manifest watch error", "error", err)
		}
	}
}
