package tabs

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/jonboulle/clockwork"

	"github.com/muurk/esp32ctl/internal/deviceapi"
	"github.com/muurk/esp32ctl/internal/modules"
	"github.com/muurk/esp32ctl/internal/ui"
)

// previewLines caps how much of an opened file is shown
const previewLines = 20

type filesKeys struct {
	refresh, partition, up, down, open, parent key.Binding
}

// Files browses the device's flash partitions
type Files struct {
	base
	api  *deviceapi.Client
	keys filesKeys

	partition deviceapi.Partition
	dir       string
	entries   []deviceapi.FileEntry // directories first
	selected  int
	storage   *deviceapi.StorageInfo
	preview   *filePreview
}

type filePreview struct {
	path    string
	content string
}

// NewFiles creates the files tab on the www partition root
func NewFiles(api *deviceapi.Client, clock clockwork.Clock) *Files {
	return &Files{
		base:      newBase(modules.Files, clock),
		api:       api,
		partition: deviceapi.PartitionWWW,
		dir:       "/",
		keys: filesKeys{
			refresh:   binding("r", "refresh", "r"),
			partition: binding("p", "switch partition", "p"),
			up:        binding("↑/k", "select", "up", "k"),
			down:      binding("↓/j", "select", "down", "j"),
			open:      binding("enter", "open", "enter"),
			parent:    binding("backspace", "parent dir", "backspace", "h"),
		},
	}
}

// Init lists the current directory and reads partition usage
func (t *Files) Init(ctx context.Context) error {
	t.mu.RLock()
	partition, dir := t.partition, t.dir
	t.mu.RUnlock()

	listing, err := t.api.ListFiles(ctx, partition, dir)
	var storage *deviceapi.StorageInfo
	if err == nil {
		storage, err = t.api.StorageInfo(ctx)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.recordLocked(err)
	if listing != nil && t.partition == partition && t.dir == dir {
		t.entries = sortEntries(listing.Files)
		if t.selected >= len(t.entries) {
			t.selected = 0
		}
	}
	if storage != nil {
		t.storage = storage
	}
	return err
}

func sortEntries(files []deviceapi.FileEntry) []deviceapi.FileEntry {
	out := append([]deviceapi.FileEntry(nil), files...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsDir != out[j].IsDir {
			return out[i].IsDir
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (t *Files) Keys() []key.Binding {
	k := t.keys
	return []key.Binding{k.refresh, k.partition, k.up, k.down, k.open, k.parent}
}

func (t *Files) Handle(msg tea.KeyMsg) Action {
	switch {
	case key.Matches(msg, t.keys.refresh):
		return t.reload
	case key.Matches(msg, t.keys.partition):
		t.mu.Lock()
		if t.partition == deviceapi.PartitionWWW {
			t.partition = deviceapi.PartitionUserdata
		} else {
			t.partition = deviceapi.PartitionWWW
		}
		t.navigateLocked("/")
		t.mu.Unlock()
		return t.reload
	case key.Matches(msg, t.keys.up):
		t.moveSelection(-1)
	case key.Matches(msg, t.keys.down):
		t.moveSelection(1)
	case key.Matches(msg, t.keys.open):
		return t.open
	case key.Matches(msg, t.keys.parent):
		t.mu.Lock()
		if t.preview != nil {
			t.preview = nil
			t.mu.Unlock()
			return nil
		}
		if t.dir == "/" {
			t.mu.Unlock()
			return nil
		}
		t.navigateLocked(path.Dir(t.dir))
		t.mu.Unlock()
		return t.reload
	}
	return nil
}

func (t *Files) reload(ctx context.Context) (string, error) {
	return "", t.Init(ctx)
}

func (t *Files) navigateLocked(dir string) {
	t.dir = dir
	t.entries = nil
	t.selected = 0
	t.preview = nil
}

func (t *Files) moveSelection(delta int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.entries) == 0 {
		return
	}
	t.selected = max(0, min(t.selected+delta, len(t.entries)-1))
}

// open enters a directory or previews a file
func (t *Files) open(ctx context.Context) (string, error) {
	t.mu.Lock()
	if t.selected >= len(t.entries) {
		t.mu.Unlock()
		return "", nil
	}
	e := t.entries[t.selected]
	target := path.Join(t.dir, e.Name)
	partition := t.partition
	if e.IsDir {
		t.navigateLocked(target)
		t.mu.Unlock()
		return "", t.Init(ctx)
	}
	t.mu.Unlock()

	fc, err := t.api.ReadFile(ctx, partition, target)
	if err != nil {
		return "", err
	}
	t.mu.Lock()
	t.preview = &filePreview{path: target, content: fc.Content}
	t.mu.Unlock()
	return "", nil
}

func (t *Files) View(width int) string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var b strings.Builder
	b.WriteString(t.headerLocked())
	b.WriteString(ui.HeaderParamValueStyle.Render(fmt.Sprintf("/%s%s", t.partition, strings.TrimSuffix(t.dir, "/")+"/")))
	b.WriteString("\n\n")

	if p := t.preview; p != nil {
		lines := strings.Split(p.content, "\n")
		more := ""
		if len(lines) > previewLines {
			more = fmt.Sprintf("\n… %d more lines", len(lines)-previewLines)
			lines = lines[:previewLines]
		}
		b.WriteString(ui.Section(p.path, strings.Join(lines, "\n")+ui.MutedStyle.Render(more)))
		b.WriteString("\n\n")
		b.WriteString(ui.MutedStyle.Render("backspace to close"))
		return b.String()
	}

	if len(t.entries) == 0 {
		b.WriteString(ui.MutedStyle.Render("No files"))
	}
	for i, e := range t.entries {
		line := fmt.Sprintf("%10s  %s", deviceapi.FormatBytes(e.Size), e.Name)
		if e.IsDir {
			line = fmt.Sprintf("%10s  %s/", "<dir>", e.Name)
		}
		b.WriteString(selectionLine(i == t.selected, line))
		b.WriteString("\n")
	}

	if t.storage != nil {
		b.WriteString("\n")
		b.WriteString(ui.Section("Storage", t.storage.FormatStorage()))
	}
	return b.String()
}
