package scripts

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/deskpilot/internal/process"
	"github.com/nerrad567/deskpilot/internal/result"
)

// App is one application shortcut: an executable or an http(s) URL.
type App struct {
	Name    string   `yaml:"-" json:"name"`
	Target  string   `yaml:"target" json:"target"`
	Args    []string `yaml:"args,omitempty" json:"args,omitempty"`
	WorkDir string   `yaml:"work_dir,omitempty" json:"work_dir,omitempty"`
}

// IsURL reports whether the app is opened through the desktop shell.
func (a App) IsURL() bool {
	t := strings.ToLower(a.Target)
	return strings.HasPrefix(t, "http://") || strings.HasPrefix(t, "https://")
}

// appsFile is the on-disk layout of apps.yaml.
type appsFile struct {
	Apps map[string]App `yaml:"apps"`
}

// Apps loads app shortcuts from a YAML file and starts them.
//
// Example apps.yaml:
//
//	apps:
//	  wiki:
//	    target: https://wiki.example.com
//	  editor:
//	    target: /usr/bin/code
//	    args: ["--new-window"]
type Apps struct {
	path string

	// start and goos are replaced in tests.
	start func(binary string, args []string, workDir string) (int, error)
	goos  string
}

// NewApps creates an app store backed by the YAML file at path.
func NewApps(path string) *Apps {
	return &Apps{path: path, start: process.StartDetached, goos: runtime.GOOS}
}

// LoadAppLaunch returns the App named name as the payload. The file is read
// on every call.
func (a *Apps) LoadAppLaunch(name string) result.Result {
	if name == "" {
		return result.FromError(ErrEmptyName)
	}
	data, err := os.ReadFile(a.path)
	if err != nil {
		return result.FromError(fmt.Errorf("reading apps file: %w", err))
	}
	var f appsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return result.FromError(fmt.Errorf("parsing apps file: %w", err))
	}
	app, ok := f.Apps[name]
	if !ok {
		return result.FromError(fmt.Errorf("%w: %q", ErrAppNotFound, name))
	}
	if app.Target == "" {
		return result.FromError(fmt.Errorf("%w: %q", ErrAppTargetRequired, name))
	}
	app.Name = name
	return result.WithPayload(app)
}

// StartApp starts app detached. URLs go through the platform shell-open
// command; executables are started directly with their arguments.
func (a *Apps) StartApp(app App) result.Result {
	binary, args := app.Target, app.Args
	if app.IsURL() {
		binary, args = shellOpen(a.goos, app.Target)
	}
	pid, err := a.start(binary, args, app.WorkDir)
	if err != nil {
		return result.FromError(err).Annotate("starting app %q", app.Name)
	}
	return result.Success(fmt.Sprintf("started %s (pid %d)", app.Name, pid))
}

// shellOpen returns the command that opens url in the default handler.
func shellOpen(goos, url string) (string, []string) {
	switch goos {
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}
	case "darwin":
		return "open", []string{url}
	default:
		return "xdg-open", []string{url}
	}
}
