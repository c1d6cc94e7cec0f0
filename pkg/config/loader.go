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

package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Load reads an Options document from path, applies defaults, and
// validates it.
func Load(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var opts Options
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	opts.SetDefaults()
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &opts, nil
}

// Watcher reloads Options from an options YAML file whenever it changes on
// disk, invoking onReload with the freshly-loaded value. Malformed
// reloads are logged and ignored; the previously-loaded Options
// continues to apply until a valid reload arrives.
type Watcher struct {
	watcher *fsnotify.Watcher
	path    string
	done    chan struct{}
}

// WatchFile starts watching path for changes, calling onReload each
// time a valid reload succeeds. Call Close to stop watching.
func WatchFile(path string, onReload func(*Options)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create watcher: %w", err)
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}

	w := &Watcher{watcher: fw, path: path, done: make(chan struct{})}

	go func() {
		for {
			select {
			case event, ok := <-fw.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				opts, err := Load(path)
				if err != nil {
					slog.Warn("config: reload failed, keeping previous options", "path", path, "error", err)
					continue
				}
				onReload(opts)
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				slog.Warn("config: watcher error", "path", path, "error", err)
			case <-w.done:
				return
			}
		}
	}()

	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
