package handlers

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peitaosu/msix-packaging/pkg/manifest"
	"github.com/peitaosu/msix-packaging/pkg/pipeline"
)

// taskDefinition is a scheduled task that runs a command at user logon.
type taskDefinition struct {
	XMLName      xml.Name         `xml:"http://schemas.microsoft.com/windows/2004/02/mit/task Task"`
	Version      string           `xml:"version,attr"`
	Registration taskRegistration `xml:"RegistrationInfo"`
	Principals   []taskPrincipal  `xml:"Principals>Principal"`
	Triggers     taskTriggers     `xml:"Triggers"`
	Settings     taskSettings     `xml:"Settings"`
	Actions      taskActions      `xml:"Actions"`
}

type taskRegistration struct {
	Author      string `xml:"Author"`
	Description string `xml:"Description,omitempty"`
	URI         string `xml:"URI"`
}

type taskPrincipal struct {
	ID        string `xml:"id,attr"`
	UserID    string `xml:"UserId"`
	LogonType string `xml:"LogonType"`
	RunLevel  string `xml:"RunLevel"`
}

type taskTriggers struct {
	Logon taskLogonTrigger `xml:"LogonTrigger"`
}

type taskLogonTrigger struct {
	Enabled bool   `xml:"Enabled"`
	UserID  string `xml:"UserId"`
}

type taskSettings struct {
	MultipleInstancesPolicy    string `xml:"MultipleInstancesPolicy"`
	DisallowStartIfOnBatteries bool   `xml:"DisallowStartIfOnBatteries"`
	StopIfGoingOnBatteries     bool   `xml:"StopIfGoingOnBatteries"`
	AllowHardTerminate         bool   `xml:"AllowHardTerminate"`
	StartWhenAvailable         bool   `xml:"StartWhenAvailable"`
	RunOnlyIfNetworkAvailable  bool   `xml:"RunOnlyIfNetworkAvailable"`
	AllowStartOnDemand         bool   `xml:"AllowStartOnDemand"`
	Enabled                    bool   `xml:"Enabled"`
	Hidden                     bool   `xml:"Hidden"`
	RunOnlyIfIdle              bool   `xml:"RunOnlyIfIdle"`
	WakeToRun                  bool   `xml:"WakeToRun"`
	Priority                   int    `xml:"Priority"`
}

type taskActions struct {
	Context string   `xml:"Context,attr"`
	Exec    taskExec `xml:"Exec"`
}

type taskExec struct {
	Command          string `xml:"Command"`
	WorkingDirectory string `xml:"WorkingDirectory,omitempty"`
}

// StartupTask registers a logon task per startup task extension. The task
// is named after the package full name inside the MsixCore task folder.
type StartupTask struct {
	req   *pipeline.Request
	tasks []startupTask
}

type startupTask struct {
	path string
	def  taskDefinition
}

func NewStartupTask(req *pipeline.Request) (pipeline.Handler, error) {
	info, err := req.PackageInfo()
	if err != nil {
		return nil, err
	}
	exts := info.Manifest.ExtensionsOf(manifest.CategoryStartupTask)
	h := &StartupTask{req: req}
	if len(exts) == 0 {
		return h, nil
	}

	account := currentUser()
	paths := req.Paths()
	taken := make(map[string]bool, len(exts))
	for i, ext := range exts {
		if ext.Executable == "" {
			continue
		}
		enabled := true
		taskName := info.FullName
		var description, taskID string
		if st := ext.StartupTask; st != nil {
			enabled = st.Enabled
			description = st.DisplayName
			taskID = st.TaskID
		}
		if len(exts) > 1 {
			base := fileName(taskID)
			if base == "" {
				base = strconv.Itoa(i)
			}
			suffix := base
			for n := 2; taken[strings.ToLower(suffix)]; n++ {
				suffix = base + "-" + strconv.Itoa(n)
			}
			taken[strings.ToLower(suffix)] = true
			taskName = info.FullName + "." + suffix
		}

		h.tasks = append(h.tasks, startupTask{
			path: filepath.Join(paths.TasksDir(), taskName+".xml"),
			def: taskDefinition{
				Version: "1.2",
				Registration: taskRegistration{
					Author:      account,
					Description: description,
					URI:         `\MsixCore\` + taskName,
				},
				Principals: []taskPrincipal{{
					ID:        "Author",
					UserID:    account,
					LogonType: "InteractiveToken",
					RunLevel:  "LeastPrivilege",
				}},
				Triggers: taskTriggers{Logon: taskLogonTrigger{Enabled: true, UserID: account}},
				Settings: taskSettings{
					MultipleInstancesPolicy:    "IgnoreNew",
					DisallowStartIfOnBatteries: true,
					StopIfGoingOnBatteries:     true,
					AllowHardTerminate:         true,
					AllowStartOnDemand:         true,
					Enabled:                    enabled,
					Priority:                   7,
				},
				Actions: taskActions{
					Context: "Author",
					Exec: taskExec{
						Command:          `"` + paths.ExecutablePath(ext.Executable, info.FullName) + `"`,
						WorkingDirectory: info.Directory,
					},
				},
			},
		})
	}
	return h, nil
}

func (h *StartupTask) ExecuteForAdd(_ context.Context) error {
	var registered []string
	for _, t := range h.tasks {
		data, err := xml.MarshalIndent(t.def, "", "  ")
		if err != nil {
			return fmt.Errorf("encode task %s: %w", t.def.Registration.URI, err)
		}
		data = append([]byte(xml.Header), data...)
		if err := writeFile(t.path, data); err != nil {
			return err
		}
		registered = append(registered, t.def.Registration.URI)
	}
	if len(registered) > 0 {
		h.req.Response().Set(KeyStartupTasks, registered)
		h.req.Logger().Info("startup tasks registered", "tasks", registered)
	}
	return nil
}

func (h *StartupTask) ExecuteForRemove(_ context.Context) error {
	for _, t := range h.tasks {
		if err := removeFile(t.path); err != nil {
			return err
		}
	}
	return nil
}

// currentUser returns the account the tasks run as.
func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return "INTERACTIVE"
}
