package assets

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/quazuo/pbr-model-viewer/engine/core"
)

const spirvMagic = 0x07230203

// LoadShaderSPIRV reads a compiled shader binary as the word slice the
// shader-module create info expects.
func LoadShaderSPIRV(path string) ([]uint32, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read shader %s: %w", path, err)
	}
	if len(raw) == 0 || len(raw)%4 != 0 {
		return nil, fmt.Errorf("shader %s has invalid size %d", path, len(raw))
	}

	words := make([]uint32, len(raw)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	if words[0] != spirvMagic {
		return nil, fmt.Errorf("shader %s has bad magic number 0x%08x", path, words[0])
	}
	return words, nil
}

// ShaderWatcher watches a directory of compiled shaders and fires
// EVENT_CODE_SHADER_CHANGED whenever a binary is rewritten.
type ShaderWatcher struct {
	watcher *fsnotify.Watcher
	done    chan struct{}
}

func NewShaderWatcher(dir string) (*ShaderWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create shader watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	sw := &ShaderWatcher{
		watcher: watcher,
		done:    make(chan struct{}),
	}
	go sw.run()

	core.LogInfo("watching %s for shader changes", dir)
	return sw, nil
}

func (sw *ShaderWatcher) run() {
	for {
		select {
		case <-sw.done:
			return
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if strings.ToLower(filepath.Ext(event.Name)) != ".spv" {
				continue
			}
			core.LogDebug("shader changed: %s", event.Name)
			core.EventFire(core.EVENT_CODE_SHADER_CHANGED, core.EventContext{Path: event.Name})
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			core.LogWarn("shader watcher error: %v", err)
		}
	}
}

func (sw *ShaderWatcher) Close() {
	close(sw.done)
	sw.watcher.Close()
}
