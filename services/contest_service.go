// services/contest_service.go
package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"contest-lifecycle-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gorm.io/gorm"
)

type ContestService struct {
	DB          *gorm.DB
	Transitions *TransitionService
	Sweeps      *SweepService
	Outbox      *OutboxService
}

func NewContestService(db *gorm.DB, transitions *TransitionService, sweeps *SweepService, outbox *OutboxService) *ContestService {
	return &ContestService{DB: db, Transitions: transitions, Sweeps: sweeps, Outbox: outbox}
}

var payoutPrinter = message.NewPrinter(language.English)

// CreateContest inserts a new contest instance in SCHEDULED. Creation does
// not write to the transition log — the log records transitions, and birth
// is not one.
func (s *ContestService) CreateContest(c *fiber.Ctx) error {
	var req struct {
		Name                  string     `json:"name"`
		Description           string     `json:"description"`
		ProviderTournamentKey string     `json:"provider_tournament_key"`
		EntryFee              float64    `json:"entry_fee"`
		PayoutStructure       string     `json:"payout_structure"`
		LockTime              *time.Time `json:"lock_time"`
		TournamentStartTime   *time.Time `json:"tournament_start_time"`
		TournamentEndTime     *time.Time `json:"tournament_end_time"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if req.Name == "" {
		return c.Status(400).JSON(fiber.Map{"error": "name is required"})
	}
	if req.EntryFee < 0 {
		return c.Status(400).JSON(fiber.Map{"error": "entry_fee must be non-negative"})
	}
	if req.LockTime != nil && req.TournamentStartTime != nil && req.TournamentStartTime.Before(*req.LockTime) {
		return c.Status(400).JSON(fiber.Map{"error": "tournament_start_time must not precede lock_time"})
	}
	if req.TournamentStartTime != nil && req.TournamentEndTime != nil && req.TournamentEndTime.Before(*req.TournamentStartTime) {
		return c.Status(400).JSON(fiber.Map{"error": "tournament_end_time must not precede tournament_start_time"})
	}

	contest := models.ContestInstance{
		ID:                    uuid.NewString(),
		ProviderTournamentKey: req.ProviderTournamentKey,
		Name:                  req.Name,
		Slug:                  slug.Make(req.Name),
		Description:           req.Description,
		EntryFee:              req.EntryFee,
		PayoutStructure:       req.PayoutStructure,
		Status:                models.StatusScheduled,
		LockTime:              req.LockTime,
		TournamentStartTime:   req.TournamentStartTime,
		TournamentEndTime:     req.TournamentEndTime,
	}
	if err := s.DB.Create(&contest).Error; err != nil {
		log.Printf("DB Error creating contest: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "DB insert failed"})
	}
	return c.Status(201).JSON(contest)
}

// GetContests lists contests, optionally filtered by status.
func (s *ContestService) GetContests(c *fiber.Ctx) error {
	query := s.DB.Model(&models.ContestInstance{})
	if statusStr := c.Query("status"); statusStr != "" {
		status := models.ContestStatus(statusStr)
		if !models.ValidStatus(status) {
			return c.Status(400).JSON(fiber.Map{"error": "unknown status filter"})
		}
		query = query.Where("status = ?", status)
	}

	var contests []models.ContestInstance
	if err := query.Order("created_at DESC").Find(&contests).Error; err != nil {
		log.Printf("DB Error fetching contests: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to fetch contests"})
	}
	return c.JSON(contests)
}

func (s *ContestService) GetContestByID(c *fiber.Ctx) error {
	var contest models.ContestInstance
	err := s.DB.
		Preload("Transitions", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		First(&contest, "id = ?", c.Params("id")).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "contest not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(contest)
}

// GetContestTransitions returns the append-only audit trail for one contest.
func (s *ContestService) GetContestTransitions(c *fiber.Ctx) error {
	var transitions []models.ContestStateTransition
	if err := s.DB.Where("contest_id = ?", c.Params("id")).
		Order("created_at ASC").
		Find(&transitions).Error; err != nil {
		log.Printf("DB Error fetching transitions: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to fetch transitions"})
	}
	return c.JSON(transitions)
}

// GetContestSettlement returns the settlement record and payout lines.
func (s *ContestService) GetContestSettlement(c *fiber.Ctx) error {
	var record models.SettlementRecord
	err := s.DB.Preload("Payouts").First(&record, "contest_id = ?", c.Params("id")).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "contest has no settlement record"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(fiber.Map{
		"settlement":      record,
		"formatted_total": payoutPrinter.Sprintf("%.2f", record.TotalPaid),
	})
}

// --- Admin lifecycle operations (all through the guarded primitive) ---

func (s *ContestService) ForceLock(c *fiber.Ctx) error {
	result, err := s.Transitions.Transition(TransitionRequest{
		ContestID:   c.Params("id"),
		From:        []models.ContestStatus{models.StatusScheduled},
		To:          models.StatusLocked,
		TriggeredBy: models.CauseAdminForceLock,
		Reason:      adminReason(c, "entries locked by administrator"),
	})
	return transitionResponse(c, result, err)
}

func (s *ContestService) CancelContest(c *fiber.Ctx) error {
	result, err := s.Transitions.Transition(TransitionRequest{
		ContestID:   c.Params("id"),
		From:        models.CancellableStates,
		To:          models.StatusCancelled,
		TriggeredBy: models.CauseAdminCancel,
		Reason:      adminReason(c, "cancelled by administrator"),
	})
	return transitionResponse(c, result, err)
}

func (s *ContestService) MarkError(c *fiber.Ctx) error {
	result, err := s.Transitions.Transition(TransitionRequest{
		ContestID:   c.Params("id"),
		From:        models.ErrorMarkableStates,
		To:          models.StatusError,
		TriggeredBy: models.CauseAdminMarkError,
		Reason:      adminReason(c, "marked as errored by administrator"),
	})
	return transitionResponse(c, result, err)
}

// ResolveError moves an ERROR contest to COMPLETE or CANCELLED.
func (s *ContestService) ResolveError(c *fiber.Ctx) error {
	var req struct {
		Target string `json:"target"` // COMPLETE or CANCELLED
		Reason string `json:"reason"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	target := models.ContestStatus(req.Target)
	if target != models.StatusComplete && target != models.StatusCancelled {
		return c.Status(400).JSON(fiber.Map{"error": "target must be COMPLETE or CANCELLED"})
	}
	reason := req.Reason
	if reason == "" {
		reason = fmt.Sprintf("error resolved to %s by administrator", target)
	}

	result, err := s.Transitions.Transition(TransitionRequest{
		ContestID:   c.Params("id"),
		From:        []models.ContestStatus{models.StatusError},
		To:          target,
		TriggeredBy: models.CauseAdminResolve,
		Reason:      reason,
	})
	if err == nil && result.Changed && target == models.StatusComplete {
		// Resolving to COMPLETE bypasses the settlement sweep, so hand the
		// contest to the outbox worker for the idempotent settlement run.
		if _, pubErr := s.Outbox.PublishContestCompleted(c.Params("id"), `{"source":"admin_resolve"}`); pubErr != nil {
			log.Printf("⚠️ Failed to publish CONTEST_COMPLETED after resolve of %s: %v", c.Params("id"), pubErr)
		}
	}
	return transitionResponse(c, result, err)
}

// SettleContest triggers the single-contest settlement path. A contest that
// is not LIVE is a no-op, not an error.
func (s *ContestService) SettleContest(c *fiber.Ctx) error {
	result, err := s.Sweeps.SettleContest(c.Params("id"), time.Now().UTC())
	return transitionResponse(c, result, err)
}

// CascadeProviderCancel cancels every non-terminal contest bound to an
// upstream provider tournament key in one atomic pass.
func (s *ContestService) CascadeProviderCancel(c *fiber.Ctx) error {
	providerKey := c.Params("key")
	if providerKey == "" {
		return c.Status(400).JSON(fiber.Map{"error": "provider key required in URL"})
	}
	result, err := s.Sweeps.CascadeCancel(providerKey, adminReason(c, "upstream provider tournament cancelled"))
	if err != nil {
		log.Printf("❌ Cascade cancel failed for provider %s: %v", providerKey, err)
		return c.Status(500).JSON(fiber.Map{"error": "cascade cancel failed"})
	}
	return c.JSON(result)
}

// adminReason prefers a reason supplied in the request body, falling back to
// a default, and records which admin acted when the gateway supplied one.
func adminReason(c *fiber.Ctx, fallback string) string {
	var req struct {
		Reason string `json:"reason"`
	}
	reason := fallback
	if err := c.BodyParser(&req); err == nil && req.Reason != "" {
		reason = req.Reason
	}
	if userID, ok := c.Locals("user_id").(string); ok && userID != "" {
		reason = fmt.Sprintf("%s (admin %s)", reason, userID)
	}
	return reason
}

// transitionResponse maps primitive outcomes onto HTTP statuses:
// precondition violations are caller bugs (409, no retry), lost races are
// retryable (409 with retryable flag), not-found is 404.
func transitionResponse(c *fiber.Ctx, result TransitionResult, err error) error {
	if err != nil {
		switch {
		case errors.Is(err, models.ErrContestNotFound):
			return c.Status(404).JSON(fiber.Map{"error": "contest not found"})
		case errors.Is(err, models.ErrPreconditionViolation):
			return c.Status(409).JSON(fiber.Map{"error": err.Error(), "retryable": false})
		case errors.Is(err, models.ErrConcurrencyViolation):
			return c.Status(409).JSON(fiber.Map{"error": err.Error(), "retryable": true})
		}
		log.Printf("❌ Transition failed: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "transition failed"})
	}
	return c.JSON(fiber.Map{
		"changed":    result.Changed,
		"escalated":  result.Escalated,
		"from_state": result.FromState,
	})
}
