package audio

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
)

// Tags 从音频文件内嵌标签读出的元数据
type Tags struct {
	Title  string
	Artist string
	Album  string
	Genre  string
	Format string
}

// ReadTags extracts ID3/MP4/FLAC/OGG tags from r.
func ReadTags(r io.ReadSeeker) (Tags, error) {
	m, err := tag.ReadFrom(r)
	if err != nil {
		return Tags{}, err
	}
	return Tags{
		Title:  strings.TrimSpace(m.Title()),
		Artist: strings.TrimSpace(m.Artist()),
		Album:  strings.TrimSpace(m.Album()),
		Genre:  strings.TrimSpace(m.Genre()),
		Format: string(m.Format()),
	}, nil
}

// TitleFromFilename 没有标签时用文件名作为标题
func TitleFromFilename(name string) string {
	base := filepath.Base(name)
	title := strings.TrimSuffix(base, filepath.Ext(base))
	title = strings.NewReplacer("_", " ", "-", " ").Replace(title)
	return strings.Join(strings.Fields(title), " ")
}
