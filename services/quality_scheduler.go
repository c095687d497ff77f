package services

import (
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// QualityScheduler периодически запускает отложенные проверки качества
// и добивает проверки, застрявшие в in_progress
type QualityScheduler struct {
	Quality      *QualityService
	StuckTimeout time.Duration
	BatchSize    int

	cron *cron.Cron
}

// NewQualityScheduler создает новый экземпляр QualityScheduler
func NewQualityScheduler(quality *QualityService, stuckTimeout time.Duration, batchSize int) *QualityScheduler {
	return &QualityScheduler{
		Quality:      quality,
		StuckTimeout: stuckTimeout,
		BatchSize:    batchSize,
		cron:         cron.New(),
	}
}

// Start запускает планировщик по cron-выражению (например "@every 5m")
func (s *QualityScheduler) Start(schedule string) error {
	if _, err := s.cron.AddFunc(schedule, s.runOnce); err != nil {
		return err
	}
	s.cron.Start()
	log.Printf("✅ Планировщик проверок качества запущен (%s)", schedule)
	return nil
}

// Stop останавливает планировщик
func (s *QualityScheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// runOnce выполняет один проход планировщика
func (s *QualityScheduler) runOnce() {
	if failed, err := s.Quality.FailStuckChecks(s.StuckTimeout); err != nil {
		log.Printf("Планировщик: ошибка при обработке застрявших проверок: %v", err)
	} else if failed > 0 {
		log.Printf("Планировщик: %d застрявших проверок переведено в failed", failed)
	}

	if started, err := s.Quality.QueueUnchecked(s.BatchSize); err != nil {
		log.Printf("Планировщик: ошибка при запуске отложенных проверок: %v", err)
	} else if started > 0 {
		log.Printf("Планировщик: запущено %d проверок качества", started)
	}
}
