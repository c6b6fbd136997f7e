package workers

import (
	"context"
	"log"

	"affiliate-tracking-system/models"

	"gorm.io/gorm"
)

// ClickWorker persists Click rows off the request path. Recording is
// best-effort: a full queue drops the click and a failed insert is logged
// and swallowed, so the visitor redirect is never blocked or failed by
// tracking.
type ClickWorker struct {
	DB    *gorm.DB
	queue chan models.Click
}

func NewClickWorker(db *gorm.DB, queueSize int) *ClickWorker {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &ClickWorker{
		DB:    db,
		queue: make(chan models.Click, queueSize),
	}
}

// Enqueue hands a click to the worker without blocking the caller.
func (w *ClickWorker) Enqueue(click models.Click) {
	select {
	case w.queue <- click:
	default:
		log.Printf("⚠️ [ClickWorker] queue full, dropping click for code %s", click.Code)
	}
}

// Start consumes the queue until ctx is cancelled, then drains what is left.
func (w *ClickWorker) Start(ctx context.Context) {
	log.Println("[ClickWorker] started")
	for {
		select {
		case click := <-w.queue:
			w.write(click)
		case <-ctx.Done():
			for {
				select {
				case click := <-w.queue:
					w.write(click)
				default:
					log.Println("⏹️ [ClickWorker] stopped")
					return
				}
			}
		}
	}
}

func (w *ClickWorker) write(click models.Click) {
	if err := w.DB.Create(&click).Error; err != nil {
		log.Printf("❌ [ClickWorker] failed to record click for code %s: %v", click.Code, err)
	}
}
