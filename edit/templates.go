package edit

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/template"

	sprig "github.com/go-task/slim-sprig/v3"
	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"epubalt/config"
)

const defaultNamePrefix = "updated_"

// Values is a struct that holds variables we make available for template expansion
type Values struct {
	Context   string
	Name      string
	Ext       string
	RequestID string
}

func expandTemplate(name config.TemplateFieldName, field string, values Values) (string, error) {
	funcMap := sprig.FuncMap()

	tmpl, err := template.New(string(name)).Funcs(funcMap).Parse(field)
	if err != nil {
		return "", fmt.Errorf("unable to parse template field %s: %w", name, err)
	}

	values.Context = string(name)

	buf := new(bytes.Buffer)
	if err := tmpl.Execute(buf, values); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// OutputPath builds name of the updated archive in dst directory. Source
// extension is always kept, template may produce subdirectories.
func OutputPath(src, dst, requestID string, cfg *config.DocumentConfig, log *zap.Logger) string {
	ext := filepath.Ext(src)
	values := Values{
		Name:      strings.TrimSuffix(filepath.Base(src), ext),
		Ext:       ext,
		RequestID: requestID,
	}
	defaultFile := cleanPathSegment(defaultNamePrefix+values.Name, cfg) + ext

	if len(cfg.OutputNameTemplate) == 0 {
		return filepath.Join(dst, defaultFile)
	}

	expanded, err := expandTemplate(config.OutputNameTemplateFieldName, cfg.OutputNameTemplate, values)
	if err != nil {
		log.Warn("Unable to prepare output filename", zap.Error(err))
		return filepath.Join(dst, defaultFile)
	}

	segments := splitPath(filepath.FromSlash(expanded))
	if len(segments) == 0 {
		return filepath.Join(dst, defaultFile)
	}

	parts := make([]string, 0, len(segments)+1)
	parts = append(parts, dst)
	for _, segment := range segments[:len(segments)-1] {
		parts = append(parts, cleanPathSegment(segment, cfg))
	}
	parts = append(parts, cleanPathSegment(segments[len(segments)-1], cfg)+ext)
	return filepath.Join(parts...)
}

// splitPath breaks path into non empty segments, relative references are
// dropped so result never leaves destination directory.
func splitPath(path string) []string {
	return slices.DeleteFunc(strings.FieldsFunc(path, func(r rune) bool {
		return r == os.PathSeparator || r == '/'
	}), func(s string) bool {
		return s == "." || s == ".."
	})
}

func cleanPathSegment(segment string, cfg *config.DocumentConfig) string {
	if cfg.FileNameTransliterate {
		segment = slug.Make(segment)
	}
	return config.CleanFileName(segment)
}
