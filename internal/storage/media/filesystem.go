package media

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	ErrVideoNotFound     = errors.New("影片檔案不存在")
	ErrSubtitleNotFound  = errors.New("字幕檔案不存在")
	ErrUnsupportedFormat = errors.New("不支援的影片格式")
)

// videoMIMETypes 支援的影片副檔名與對應的 MIME 類型
var videoMIMETypes = map[string]string{
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".mpeg": "video/mpeg",
	".mpg":  "video/mpeg",
	".avi":  "video/x-msvideo",
	".wmv":  "video/x-ms-wmv",
	".flv":  "video/x-flv",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
}

// subtitleExtensions 依優先順序排列
var subtitleExtensions = []string{".srt", ".vtt", ".txt"}

// Video 是已讀入記憶體的影片。
type Video struct {
	Path     string
	Name     string
	MIMEType string
	Data     []byte
}

// VideoFile 是掃描目錄時找到的影片，SubtitlePath 為同名字幕檔 (可能為空)。
type VideoFile struct {
	Path         string
	Name         string
	SubtitlePath string
	Size         int64
	ModTime      time.Time
}

// MIMEType 依副檔名回傳影片的 MIME 類型。
func MIMEType(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	mime, ok := videoMIMETypes[ext]
	if !ok {
		return "", fmt.Errorf("%w: '%s'", ErrUnsupportedFormat, ext)
	}
	return mime, nil
}

// IsVideo 判斷檔名是否為支援的影片格式。
func IsVideo(path string) bool {
	_, err := MIMEType(path)
	return err == nil
}

// FileSystemStorage 負責從本地檔案系統讀取影片與字幕
type FileSystemStorage struct {
	logger *zap.Logger
}

func NewFileSystemStorage(logger *zap.Logger) *FileSystemStorage {
	return &FileSystemStorage{logger: logger.Named("media")}
}

// AbsolutePath 取得影片的絕對路徑並驗證檔案存在。
func (s *FileSystemStorage) AbsolutePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("影片路徑不得為空")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("無法取得 '%s' 的絕對路徑: %w", path, err)
	}

	info, err := os.Stat(absPath)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: '%s'", ErrVideoNotFound, absPath)
	} else if err != nil {
		return "", fmt.Errorf("檢查影片檔案 '%s' 時發生錯誤: %w", absPath, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("'%s' 是目錄而不是影片檔案", absPath)
	}
	return absPath, nil
}

// ReadVideo 讀取影片內容與 MIME 類型。
func (s *FileSystemStorage) ReadVideo(path string) (*Video, error) {
	absPath, err := s.AbsolutePath(path)
	if err != nil {
		return nil, err
	}
	mime, err := MIMEType(absPath)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("正在讀取影片", zap.String("path", absPath))
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("無法讀取影片檔案 '%s': %w", absPath, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("影片檔案 '%s' 內容為空", absPath)
	}
	s.logger.Info("影片讀取成功", zap.String("path", absPath), zap.String("mime", mime), zap.Int("bytes", len(data)))
	return &Video{Path: absPath, Name: filepath.Base(absPath), MIMEType: mime, Data: data}, nil
}

// FindSubtitle 尋找與影片同名的字幕檔 (.srt、.vtt、.txt)。
func (s *FileSystemStorage) FindSubtitle(videoPath string) (string, bool) {
	base := strings.TrimSuffix(videoPath, filepath.Ext(videoPath))
	for _, ext := range subtitleExtensions {
		candidate := base + ext
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
	}
	return "", false
}

// ReadSubtitle 讀取字幕或逐字稿檔案。
func (s *FileSystemStorage) ReadSubtitle(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: '%s'", ErrSubtitleNotFound, path)
	} else if err != nil {
		return "", fmt.Errorf("無法讀取字幕檔案 '%s': %w", path, err)
	}
	return string(data), nil
}

// ScanVideos 遞迴掃描目錄，回傳所有支援格式的影片及其同名字幕檔，依路徑排序。
func (s *FileSystemStorage) ScanVideos(dir string) ([]VideoFile, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("無法取得 '%s' 的絕對路徑: %w", dir, err)
	}
	s.logger.Info("開始掃描影片", zap.String("dir", absDir))

	var videos []VideoFile
	err = filepath.WalkDir(absDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == absDir {
				return walkErr
			}
			s.logger.Warn("讀取目錄失敗，略過", zap.String("path", path), zap.Error(walkErr))
			return nil
		}
		if d.IsDir() || !IsVideo(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			s.logger.Warn("讀取檔案資訊失敗，略過", zap.String("path", path), zap.Error(err))
			return nil
		}
		video := VideoFile{Path: path, Name: d.Name(), Size: info.Size(), ModTime: info.ModTime()}
		if subtitle, ok := s.FindSubtitle(path); ok {
			video.SubtitlePath = subtitle
		}
		videos = append(videos, video)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("掃描目錄 '%s' 失敗: %w", absDir, err)
	}

	sort.Slice(videos, func(i, j int) bool { return videos[i].Path < videos[j].Path })
	s.logger.Info("掃描完成", zap.String("dir", absDir), zap.Int("videos", len(videos)))
	return videos, nil
}
