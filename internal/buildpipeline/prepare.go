package buildpipeline

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// configXML is a minimal model of the widget document sufficient to
// migrate legacy cocoon elements and enumerate engines/plugins, per spec
// §4.4 "prepare".
type configXML struct {
	XMLName  xml.Name `xml:"widget"`
	Engine   []engineElem   `xml:"engine"`
	Plugin   []pluginElem   `xml:"plugin"`
	Cocoon   []cocoonElem   `xml:"cocoon:platform"`
	CocoonPl []cocoonPlugin `xml:"cocoon:plugin"`
}

type engineElem struct {
	Name string `xml:"name,attr"`
	Spec string `xml:"spec,attr"`
}

type pluginElem struct {
	Name  string      `xml:"name,attr"`
	Spec  string      `xml:"spec,attr"`
	Param []paramElem `xml:"param"`
}

type paramElem struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// cocoonElem is the legacy <cocoon:platform name="android" version="..."/>.
type cocoonElem struct {
	Name    string `xml:"name,attr"`
	Version string `xml:"version,attr"`
}

// cocoonPlugin is the legacy <cocoon:plugin name="..." version="...">
// with nested <param> children, the same shape as a standard plugin.
type cocoonPlugin struct {
	Name    string      `xml:"name,attr"`
	Version string      `xml:"version,attr"`
	Param   []paramElem `xml:"param"`
}

// migrate folds legacy cocoon:platform/cocoon:plugin elements into the
// standard engine/plugin lists, defaulting any missing spec to "*" (spec
// §4.4, "Propagation policy" §8 invariant on legacy element handling).
func (c *configXML) migrate() {
	for _, p := range c.Cocoon {
		spec := p.Version
		if spec == "" {
			spec = "*"
		}
		c.Engine = append(c.Engine, engineElem{Name: p.Name, Spec: spec})
	}
	for _, p := range c.CocoonPl {
		spec := p.Version
		if spec == "" {
			spec = "*"
		}
		c.Plugin = append(c.Plugin, pluginElem{Name: p.Name, Spec: spec, Param: p.Param})
	}
	for i := range c.Engine {
		if c.Engine[i].Spec == "" {
			c.Engine[i].Spec = "*"
		}
	}
	for i := range c.Plugin {
		if c.Plugin[i].Spec == "" {
			c.Plugin[i].Spec = "*"
		}
	}
}

// Prepare parses config.xml, migrates legacy elements, installs engines
// and plugins, and invokes the native-lib's prepare, per spec §4.4.
func Prepare(ctx context.Context, pc *Context) error {
	data, err := os.ReadFile(filepath.Join(pc.Workspace.ProjectDir(), "config.xml"))
	if err != nil {
		return fail("prepare", fmt.Sprintf("read config.xml: %v", err), "Could not read the project configuration.")
	}

	var cfg configXML
	if err := xml.Unmarshal(data, &cfg); err != nil {
		return fail("prepare", fmt.Sprintf("parse config.xml: %v", err), "The project configuration is malformed.")
	}
	cfg.migrate()

	for _, e := range cfg.Engine {
		if e.Name != string(pc.Job.Platform) {
			continue
		}
		spec := e.Spec
		if spec == "" || spec == "*" {
			spec = "latest"
		}
		if err := runCordova(ctx, pc, "platform", "add", e.Name+"@"+spec); err != nil {
			return fail("prepare", fmt.Sprintf("add engine %s@%s: %v", e.Name, spec, err),
				fmt.Sprintf("Could not install the %s platform engine.", e.Name))
		}
	}

	for _, p := range cfg.Plugin {
		target := p.Name
		if p.Spec != "" && p.Spec != "*" {
			target = p.Name + "@" + p.Spec
		}
		args := []string{"plugin", "add", target}
		for _, param := range p.Param {
			args = append(args, "--variable", param.Name+"="+param.Value)
		}
		if err := runCordova(ctx, pc, args...); err != nil {
			return fail("prepare", fmt.Sprintf("add plugin %s: %v", p.Name, err),
				fmt.Sprintf("Could not install the %s plugin.", p.Name))
		}
	}

	if err := runCordova(ctx, pc, "prepare", string(pc.Job.Platform)); err != nil {
		return fail("prepare", fmt.Sprintf("cordova prepare: %v", err), "Project preparation failed.")
	}

	return nil
}

// runCordova invokes the job's pinned cordova-lib CLI inside the project
// directory, appending combined output to cordova.log per spec §4.4.
func runCordova(ctx context.Context, pc *Context, args ...string) error {
	logFile, err := os.OpenFile(pc.Workspace.CordovaLog(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer logFile.Close()

	cmd := exec.CommandContext(ctx, cordovaBin(pc.Job.LibVersion), args...)
	cmd.Dir = pc.Workspace.ProjectDir()
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	return cmd.Run()
}
