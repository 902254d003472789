// Class output detection from JVM build files
// Maven, Gradle and sbt projects compile into well known directories
package config

import (
	"encoding/xml"
	"os"
	"path/filepath"
)

// BuildArtifactDetector finds the directories a JVM build writes class files to
type BuildArtifactDetector struct {
	projectRoot string
}

// NewBuildArtifactDetector creates a new build artifact detector
func NewBuildArtifactDetector(projectRoot string) *BuildArtifactDetector {
	return &BuildArtifactDetector{projectRoot: projectRoot}
}

// DetectClassOutputs returns the class output directories of the build
// tools found under the project root, relative to it. Only directories
// that exist are returned.
func (bad *BuildArtifactDetector) DetectClassOutputs() []string {
	var dirs []string
	dirs = append(dirs, bad.detectMavenOutputs()...)
	dirs = append(dirs, bad.detectGradleOutputs()...)
	dirs = append(dirs, bad.detectSbtOutputs()...)
	return DeduplicatePatterns(bad.existing(dirs))
}

type mavenPOM struct {
	Build struct {
		OutputDirectory string `xml:"outputDirectory"`
	} `xml:"build"`
}

// detectMavenOutputs reads pom.xml for a custom outputDirectory
func (bad *BuildArtifactDetector) detectMavenOutputs() []string {
	data, err := os.ReadFile(filepath.Join(bad.projectRoot, "pom.xml"))
	if err != nil {
		return nil
	}
	var pom mavenPOM
	if xml.Unmarshal(data, &pom) == nil && pom.Build.OutputDirectory != "" {
		// ${project.build.directory} expressions are left to the default
		if filepath.IsAbs(pom.Build.OutputDirectory) || pom.Build.OutputDirectory[0] != '$' {
			return []string{pom.Build.OutputDirectory}
		}
	}
	return []string{"target/classes"}
}

func (bad *BuildArtifactDetector) detectGradleOutputs() []string {
	for _, f := range []string{"build.gradle", "build.gradle.kts", "settings.gradle", "settings.gradle.kts"} {
		if _, err := os.Stat(filepath.Join(bad.projectRoot, f)); err == nil {
			return []string{
				"build/classes/java/main",
				"build/classes/kotlin/main",
				"build/classes/scala/main",
			}
		}
	}
	return nil
}

func (bad *BuildArtifactDetector) detectSbtOutputs() []string {
	if _, err := os.Stat(filepath.Join(bad.projectRoot, "build.sbt")); err != nil {
		return nil
	}
	matches, _ := filepath.Glob(filepath.Join(bad.projectRoot, "target", "scala-*", "classes"))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if rel, err := filepath.Rel(bad.projectRoot, m); err == nil {
			out = append(out, filepath.ToSlash(rel))
		}
	}
	return out
}

func (bad *BuildArtifactDetector) existing(dirs []string) []string {
	out := dirs[:0]
	for _, d := range dirs {
		p := d
		if !filepath.IsAbs(p) {
			p = filepath.Join(bad.projectRoot, d)
		}
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			out = append(out, d)
		}
	}
	return out
}

// DeduplicatePatterns removes duplicate patterns, keeping the first occurrence
func DeduplicatePatterns(patterns []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(patterns))

	for _, pattern := range patterns {
		if !seen[pattern] {
			seen[pattern] = true
			result = append(result, pattern)
		}
	}

	return result
}
