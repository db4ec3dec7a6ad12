package uploader

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/docker/go-units"
	"github.com/gabriel-vasile/mimetype"
)

// ValidationRules 是上传前的本地限制，零值表示不限制。
type ValidationRules struct {
	// AcceptedTypes 是逗号分隔的 MIME 类型（支持 "image/*"）或扩展名（".pdf"）。
	AcceptedTypes string
	MaxFiles      int
	MaxTotalSize  int64
}

// Validate 依次检查文件名、类型、数量和总大小，返回第一个失败项。
func (r ValidationRules) Validate(files []Source) error {
	if len(files) == 0 {
		return &ValidationError{Message: "No files selected"}
	}
	for _, f := range files {
		if strings.HasPrefix(f.Name(), ".") || strings.ContainsAny(f.Name(), "/\\\x00") {
			return &ValidationError{Message: fmt.Sprintf("File name %q is not allowed", f.Name())}
		}
	}

	if accepted := splitAccepted(r.AcceptedTypes); len(accepted) > 0 {
		for _, f := range files {
			ok, err := matchesAccepted(f, accepted)
			if err != nil {
				return fmt.Errorf("detect type of %s: %w", f.Name(), err)
			}
			if !ok {
				return &ValidationError{Message: fmt.Sprintf("File type not accepted. Accepted types: %s", r.AcceptedTypes)}
			}
		}
	}

	if r.MaxFiles > 0 && len(files) > r.MaxFiles {
		return &ValidationError{Message: fmt.Sprintf("You can only upload up to %d files", r.MaxFiles)}
	}

	if r.MaxTotalSize > 0 {
		var total int64
		for _, f := range files {
			total += f.Size()
		}
		if total > r.MaxTotalSize {
			return &ValidationError{Message: fmt.Sprintf("Total file size exceeds %s", units.HumanSize(float64(r.MaxTotalSize)))}
		}
	}
	return nil
}

func splitAccepted(raw string) []string {
	var out []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, strings.ToLower(t))
		}
	}
	return out
}

func matchesAccepted(src Source, accepted []string) (bool, error) {
	mtype, err := mimetype.DetectReader(io.NewSectionReader(src, 0, src.Size()))
	if err != nil {
		return false, err
	}
	ext := strings.ToLower(filepath.Ext(src.Name()))
	for _, a := range accepted {
		switch {
		case strings.HasPrefix(a, "."):
			if ext == a {
				return true, nil
			}
		case strings.HasSuffix(a, "/*"):
			prefix := strings.TrimSuffix(a, "*")
			for m := mtype; m != nil; m = m.Parent() {
				if strings.HasPrefix(m.String(), prefix) {
					return true, nil
				}
			}
		default:
			if mtype.Is(a) {
				return true, nil
			}
		}
	}
	return false, nil
}
