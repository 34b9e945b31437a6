// services/snapshot_service.go
package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"contest-lifecycle-system/models"
	"contest-lifecycle-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SnapshotService struct {
	DB *gorm.DB
	// ArchiveEnabled gates the R2 upload so local/test environments can run
	// without object-storage credentials.
	ArchiveEnabled bool
}

func NewSnapshotService(db *gorm.DB, archiveEnabled bool) *SnapshotService {
	return &SnapshotService{DB: db, ArchiveEnabled: archiveEnabled}
}

// LatestFinalSnapshot returns the most recent provider-final snapshot for a
// contest, or gorm.ErrRecordNotFound if none has been ingested yet.
func LatestFinalSnapshot(tx *gorm.DB, contestID string) (*models.EventDataSnapshot, error) {
	var snapshot models.EventDataSnapshot
	err := tx.Where("contest_id = ? AND provider_final_flag = ?", contestID, true).
		Order("ingested_at DESC").
		First(&snapshot).Error
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// IngestSnapshot accepts a raw provider payload, hashes it, archives the raw
// bytes to R2 and records the snapshot row. The lifecycle core only ever
// reads these rows; ingestion is the one write path.
func (s *SnapshotService) IngestSnapshot(c *fiber.Ctx) error {
	contestID := c.Params("id")
	if contestID == "" {
		return c.Status(400).JSON(fiber.Map{"error": "contest id required in URL"})
	}

	var contest models.ContestInstance
	if err := s.DB.First(&contest, "id = ?", contestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "contest not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error fetching contest"})
	}

	payload := c.Body()
	if len(payload) == 0 {
		return c.Status(400).JSON(fiber.Map{"error": "snapshot payload required in request body"})
	}

	isFinal := c.Query("final") == "true"
	hash := utils.HashPayload(payload)

	snapshot := models.EventDataSnapshot{
		ID:                uuid.NewString(),
		ContestID:         contestID,
		ProviderFinalFlag: isFinal,
		ContentHash:       hash,
		IngestedAt:        time.Now().UTC(),
	}

	if s.ArchiveEnabled {
		key := fmt.Sprintf("snapshots/%s/%s.json", contestID, snapshot.ID)
		url, err := utils.UploadBytesToR2(payload, key, "application/json")
		if err != nil {
			log.Printf("❌ [SNAPSHOT] failed to archive payload for contest %s: %v", contestID, err)
			return c.Status(500).JSON(fiber.Map{"error": "failed to archive snapshot payload"})
		}
		snapshot.ArchiveKey = key
		snapshot.ArchiveURL = url
	}

	if err := s.DB.Create(&snapshot).Error; err != nil {
		log.Printf("❌ [SNAPSHOT] DB insert failed for contest %s: %v", contestID, err)
		return c.Status(500).JSON(fiber.Map{"error": "DB insert failed"})
	}

	log.Printf("[SNAPSHOT] ingested snapshot %s for contest %s (final=%t, hash=%s)", snapshot.ID, contestID, isFinal, hash[:12])
	return c.Status(201).JSON(snapshot)
}

// GetContestSnapshots lists a contest's snapshots, newest first.
func (s *SnapshotService) GetContestSnapshots(c *fiber.Ctx) error {
	contestID := c.Params("id")

	var snapshots []models.EventDataSnapshot
	if err := s.DB.Where("contest_id = ?", contestID).
		Order("ingested_at DESC").
		Find(&snapshots).Error; err != nil {
		log.Printf("DB Error fetching snapshots: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to fetch snapshots"})
	}
	return c.JSON(snapshots)
}
