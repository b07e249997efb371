package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/benjamin-robertson/bolt/internal/errors"
	"github.com/benjamin-robertson/bolt/internal/executor"
	"github.com/benjamin-robertson/bolt/internal/target"
)

// taskMetadata is the on-disk <task>.json metadata file.
type taskMetadata struct {
	Description string               `json:"description"`
	Parameters  map[string]ParamSpec `json:"parameters"`
}

// splitTaskName splits "module::task" into its parts. A bare module name
// refers to that module's init task.
func splitTaskName(name string) (module, task string) {
	parts := strings.SplitN(name, "::", 2)
	if len(parts) == 1 {
		return parts[0], "init"
	}
	return parts[0], parts[1]
}

// GetTaskInfo finds a task on the modulepath and loads its metadata.
func (r *ModulepathRuntime) GetTaskInfo(name string) (TaskInfo, error) {
	module, task := splitTaskName(name)

	for _, dir := range r.Modulepath {
		taskDir := filepath.Join(dir, module, "tasks")
		matches, _ := filepath.Glob(filepath.Join(taskDir, task+".*"))
		var file string
		for _, m := range matches {
			if filepath.Ext(m) != ".json" {
				file = m
				break
			}
		}
		if file == "" {
			continue
		}

		info := TaskInfo{Name: name, File: file, Parameters: map[string]ParamSpec{}}
		metaPath := filepath.Join(taskDir, task+".json")
		if data, err := os.ReadFile(metaPath); err == nil {
			var meta taskMetadata
			if err := json.Unmarshal(data, &meta); err != nil {
				return TaskInfo{}, errors.WrapWithCode(err, errors.ErrFile,
					"Invalid task metadata: "+metaPath,
					"Check the JSON structure of the metadata file")
			}
			info.Description = meta.Description
			if meta.Parameters != nil {
				info.Parameters = meta.Parameters
			}
		}
		return info, nil
	}

	return TaskInfo{}, errors.New(errors.ErrRuntime,
		fmt.Sprintf("Could not find task '%s'", name),
		"Run 'bolt task show' to list available tasks")
}

// ListTasks discovers every task on the modulepath, sorted by name.
func (r *ModulepathRuntime) ListTasks() ([]TaskInfo, error) {
	seen := map[string]bool{}
	var tasks []TaskInfo

	for _, dir := range r.Modulepath {
		modules, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, mod := range modules {
			if !mod.IsDir() {
				continue
			}
			entries, err := os.ReadDir(filepath.Join(dir, mod.Name(), "tasks"))
			if err != nil {
				continue
			}
			for _, entry := range entries {
				ext := filepath.Ext(entry.Name())
				if entry.IsDir() || ext == ".json" {
					continue
				}
				base := strings.TrimSuffix(entry.Name(), ext)
				name := mod.Name() + "::" + base
				if base == "init" {
					name = mod.Name()
				}
				if seen[name] {
					continue
				}
				seen[name] = true

				info, err := r.GetTaskInfo(name)
				if err != nil {
					continue
				}
				tasks = append(tasks, info)
			}
		}
	}

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Name < tasks[j].Name })
	return tasks, nil
}

// ListModules lists the module directories visible on the modulepath.
func (r *ModulepathRuntime) ListModules() ([]string, error) {
	seen := map[string]bool{}
	var modules []string
	for _, dir := range r.Modulepath {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() && !seen[entry.Name()] {
				seen[entry.Name()] = true
				modules = append(modules, entry.Name())
			}
		}
	}
	sort.Strings(modules)
	return modules, nil
}

// paramName matches valid parameter names. Names become PT_-prefixed
// environment variables on the target, so anything beyond an identifier is
// rejected before it reaches a remote shell.
var paramName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ParseParams coerces raw values against the task's parameter schema.
// Pair-supplied values are strings and get coerced to the declared type;
// structured values (from --params) are used as-is. Declared defaults fill
// missing parameters either way.
func (r *ModulepathRuntime) ParseParams(task string, raw map[string]interface{}, structured bool) (map[string]interface{}, error) {
	info, err := r.GetTaskInfo(task)
	if err != nil {
		return nil, err
	}

	params := make(map[string]interface{}, len(raw))
	for key, value := range raw {
		if !paramName.MatchString(key) {
			return nil, errors.New(errors.ErrUsage,
				fmt.Sprintf("Invalid parameter name '%s' for task '%s'", key, task),
				"Parameter names are identifiers: letters, digits, and underscores")
		}
		spec, declared := info.Parameters[key]
		if structured || !declared {
			params[key] = value
			continue
		}
		coerced, err := coerceValue(fmt.Sprintf("%v", value), spec.Type)
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrUsage,
				fmt.Sprintf("Invalid value for parameter '%s' of task '%s'", key, task),
				fmt.Sprintf("Expected type %s", spec.Type))
		}
		params[key] = coerced
	}

	for key, spec := range info.Parameters {
		if _, ok := params[key]; !ok && spec.Default != nil {
			params[key] = spec.Default
		}
	}
	return params, nil
}

// coerceValue converts a string parameter to its declared type.
func coerceValue(value, declaredType string) (interface{}, error) {
	// Optional[...] wrappers coerce to their inner type.
	t := declaredType
	if strings.HasPrefix(t, "Optional[") && strings.HasSuffix(t, "]") {
		t = t[len("Optional[") : len(t)-1]
	}

	switch {
	case t == "" || strings.HasPrefix(t, "String"):
		return value, nil
	case strings.HasPrefix(t, "Integer"):
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("'%s' is not an integer", value)
		}
		return n, nil
	case strings.HasPrefix(t, "Boolean"):
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("'%s' is not a boolean", value)
		}
		return b, nil
	case strings.HasPrefix(t, "Array") || strings.HasPrefix(t, "Hash"):
		var out interface{}
		if err := json.Unmarshal([]byte(value), &out); err != nil {
			return nil, fmt.Errorf("'%s' is not valid JSON for %s", value, t)
		}
		return out, nil
	default:
		return value, nil
	}
}

// RunTask uploads the task implementation to each target and executes it
// with parameters injected as PT_-prefixed environment variables.
func (r *ModulepathRuntime) RunTask(ctx context.Context, targets []target.Target, name string, params map[string]interface{}, noop bool) (executor.ResultSet, error) {
	info, err := r.GetTaskInfo(name)
	if err != nil {
		return executor.ResultSet{}, err
	}

	env := map[string]string{}
	for key, value := range params {
		env["PT_"+key] = stringifyParam(value)
	}
	if noop {
		env["PT__noop"] = "true"
	}

	return r.Executor.RunScript(ctx, targets, info.File, nil, env)
}

// stringifyParam renders a parameter value for environment injection.
// Strings pass through; structured values are JSON-encoded.
func stringifyParam(value interface{}) string {
	if s, ok := value.(string); ok {
		return s
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(data)
}
