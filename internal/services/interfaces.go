package services

import (
	"context"

	"video-mastermind/internal/models"
	"video-mastermind/internal/storage/media"
)

// VideoModel 是可以分析影片的模型供應商 (Gemini、OpenRouter)
type VideoModel interface {
	Name() string
	GenerateFromVideo(ctx context.Context, req models.VideoRequest) (*models.ModelReply, error)
}

// MediaStorage 介面定義了讀取影片與字幕的操作
type MediaStorage interface {
	ReadVideo(path string) (*media.Video, error)
	FindSubtitle(videoPath string) (string, bool)
	ReadSubtitle(path string) (string, error)
	ScanVideos(dir string) ([]media.VideoFile, error)
}
