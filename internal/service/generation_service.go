package service

import (
	"alcyxob/group-coach/internal/domain"
	"alcyxob/group-coach/internal/gateway"
	"alcyxob/group-coach/internal/repository"
	"alcyxob/group-coach/internal/storage"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// --- Error Definitions ---
var (
	ErrInvalidFormCheckTier   = errors.New("unknown form-check tier")
	ErrUploadNotFound         = errors.New("upload not found")
	ErrUploadAccessDenied     = errors.New("upload belongs to another user")
	ErrUnsupportedContentType = errors.New("form-check uploads must be videos")
	ErrStorageUnavailable     = errors.New("file storage is not configured")
	ErrEmptyPrompt            = errors.New("generation request payload is required")
)

const formCheckPrefix = "form-checks"

// GenerationResult is a successfully generated artifact and what it cost.
type GenerationResult struct {
	Action   domain.AIAction
	Cost     int64
	Artifact json.RawMessage
}

// UploadURLResult is a presigned PUT for a form-check video.
type UploadURLResult struct {
	UploadURL string
	ObjectKey string
	ExpiresAt time.Time
}

// GroupWorkoutInput asks the gateway to prescribe one template to several
// athletes and assigns the result as a batch.
type GroupWorkoutInput struct {
	GroupID      primitive.ObjectID
	TemplateName string
	Date         time.Time
	AthleteIDs   []primitive.ObjectID
	Prompt       json.RawMessage
}

// groupWorkoutArtifact is the part of a group-workout artifact this service consumes.
type groupWorkoutArtifact struct {
	Prescriptions []struct {
		AthleteID string                        `json:"athleteId"`
		Exercises []domain.ExercisePrescription `json:"exercises"`
	} `json:"prescriptions"`
}

// GenerationService runs every paid AI action through the ledger.
type GenerationService interface {
	Chat(ctx context.Context, userID primitive.ObjectID, payload json.RawMessage) (*GenerationResult, error)
	GenerateWorkout(ctx context.Context, userID primitive.ObjectID, payload json.RawMessage) (*GenerationResult, error)
	GenerateProgram(ctx context.Context, userID primitive.ObjectID, payload json.RawMessage) (*GenerationResult, error)

	RequestFormCheckUploadURL(ctx context.Context, userID primitive.ObjectID, fileName, contentType string) (*UploadURLResult, error)
	ConfirmFormCheckUpload(ctx context.Context, userID primitive.ObjectID, objectKey, fileName, contentType string, size int64) (*domain.Upload, error)
	AnalyzeFormCheck(ctx context.Context, userID, uploadID primitive.ObjectID, tier domain.FormCheckTier, notes string) (*GenerationResult, error)

	// GenerateGroupWorkout charges per athlete. Athletes whose assignment
	// could not be written are refunded; a failed call or an unusable
	// artifact refunds everything.
	GenerateGroupWorkout(ctx context.Context, coachID primitive.ObjectID, input GroupWorkoutInput) (*BatchResult, error)
}

type generationService struct {
	ledger     LedgerService
	client     gateway.Client
	batches    BatchService
	groupRepo  repository.GroupRepository
	uploadRepo repository.UploadRepository
	files      storage.FileStorage
	costs      domain.CostTable
	logger     *slog.Logger
	now        func() time.Time
}

// NewGenerationService wires the paid AI actions. files may be nil when no
// object storage is configured; form-check operations then fail.
func NewGenerationService(
	ledger LedgerService,
	client gateway.Client,
	batches BatchService,
	groupRepo repository.GroupRepository,
	uploadRepo repository.UploadRepository,
	files storage.FileStorage,
	costs domain.CostTable,
	logger *slog.Logger,
) GenerationService {
	return &generationService{
		ledger:     ledger,
		client:     client,
		batches:    batches,
		groupRepo:  groupRepo,
		uploadRepo: uploadRepo,
		files:      files,
		costs:      costs,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *generationService) Chat(ctx context.Context, userID primitive.ObjectID, payload json.RawMessage) (*GenerationResult, error) {
	return s.generate(ctx, userID, domain.ActionChat, s.costs.Chat, payload)
}

func (s *generationService) GenerateWorkout(ctx context.Context, userID primitive.ObjectID, payload json.RawMessage) (*GenerationResult, error) {
	return s.generate(ctx, userID, domain.ActionWorkout, s.costs.Workout, payload)
}

func (s *generationService) GenerateProgram(ctx context.Context, userID primitive.ObjectID, payload json.RawMessage) (*GenerationResult, error) {
	return s.generate(ctx, userID, domain.ActionProgram, s.costs.Program, payload)
}

// generate is the shared debit, call, refund-on-failure path.
func (s *generationService) generate(ctx context.Context, userID primitive.ObjectID, action domain.AIAction, cost int64, payload json.RawMessage) (*GenerationResult, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyPrompt
	}

	var resp *gateway.Response
	err := s.ledger.Charge(ctx, userID, action, cost, func(ctx context.Context) error {
		var callErr error
		resp, callErr = s.client.Generate(ctx, gateway.Request{Action: action, Cost: cost, Payload: payload})
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return &GenerationResult{Action: action, Cost: cost, Artifact: resp.Artifact}, nil
}

// === Form checks ===

func (s *generationService) RequestFormCheckUploadURL(ctx context.Context, userID primitive.ObjectID, fileName, contentType string) (*UploadURLResult, error) {
	if s.files == nil {
		return nil, ErrStorageUnavailable
	}
	if !strings.HasPrefix(contentType, "video/") {
		return nil, ErrUnsupportedContentType
	}

	objectKey := storage.FormCheckObjectKey(userID.Hex(), fileName)
	url, err := s.files.GeneratePresignedUploadURL(ctx, objectKey, contentType, storage.DefaultPresignedURLExpiry)
	if err != nil {
		return nil, err
	}
	return &UploadURLResult{
		UploadURL: url,
		ObjectKey: objectKey,
		ExpiresAt: s.now().Add(storage.DefaultPresignedURLExpiry).UTC(),
	}, nil
}

// ConfirmFormCheckUpload records an uploaded video. The object key must be one
// issued to this user.
func (s *generationService) ConfirmFormCheckUpload(ctx context.Context, userID primitive.ObjectID, objectKey, fileName, contentType string, size int64) (*domain.Upload, error) {
	if !strings.HasPrefix(objectKey, formCheckPrefix+"/"+userID.Hex()+"/") {
		return nil, ErrUploadAccessDenied
	}
	if !strings.HasPrefix(contentType, "video/") {
		return nil, ErrUnsupportedContentType
	}

	upload := &domain.Upload{
		OwnerID:     userID,
		S3ObjectKey: objectKey,
		FileName:    fileName,
		ContentType: contentType,
		Size:        size,
	}
	if _, err := s.uploadRepo.Create(ctx, upload); err != nil {
		return nil, err
	}
	return upload, nil
}

// AnalyzeFormCheck charges by tier. The video URL is presigned before the
// debit so a storage failure costs nothing.
func (s *generationService) AnalyzeFormCheck(ctx context.Context, userID, uploadID primitive.ObjectID, tier domain.FormCheckTier, notes string) (*GenerationResult, error) {
	cost, ok := s.costs.FormCheck[tier]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFormCheckTier, tier)
	}
	if s.files == nil {
		return nil, ErrStorageUnavailable
	}

	upload, err := s.uploadRepo.GetByID(ctx, uploadID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUploadNotFound
		}
		return nil, err
	}
	if upload.OwnerID != userID {
		return nil, ErrUploadAccessDenied
	}

	videoURL, err := s.files.GeneratePresignedDownloadURL(ctx, upload.S3ObjectKey, storage.DefaultPresignedURLExpiry)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(map[string]string{
		"videoUrl":    videoURL,
		"contentType": upload.ContentType,
		"tier":        string(tier),
		"notes":       notes,
	})
	if err != nil {
		return nil, err
	}
	return s.generate(ctx, userID, domain.ActionFormCheck, cost, payload)
}

// === Group workouts ===

func (s *generationService) GenerateGroupWorkout(ctx context.Context, coachID primitive.ObjectID, input GroupWorkoutInput) (*BatchResult, error) {
	if strings.TrimSpace(input.TemplateName) == "" || input.Date.IsZero() || len(input.AthleteIDs) == 0 {
		return nil, ErrInvalidBatchInput
	}
	if len(input.Prompt) == 0 {
		return nil, ErrEmptyPrompt
	}

	// Validate up front so bad input never reaches the ledger.
	group, err := loadAdminGroup(ctx, s.groupRepo, coachID, input.GroupID)
	if err != nil {
		return nil, err
	}
	requested := make(map[primitive.ObjectID]struct{}, len(input.AthleteIDs))
	for _, id := range input.AthleteIDs {
		if _, dup := requested[id]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAthlete, id.Hex())
		}
		if !group.IsMember(id) {
			return nil, fmt.Errorf("%w: %s", ErrNotGroupMember, id.Hex())
		}
		requested[id] = struct{}{}
	}

	perAthlete := s.costs.GroupWorkoutPerAthlete
	total := perAthlete * int64(len(input.AthleteIDs))

	payload, err := json.Marshal(map[string]any{
		"templateName": input.TemplateName,
		"date":         domain.BatchDate(input.Date).Format(time.DateOnly),
		"athleteIds":   input.AthleteIDs,
		"prompt":       input.Prompt,
	})
	if err != nil {
		return nil, err
	}

	var result *BatchResult
	err = s.ledger.ChargePartial(ctx, coachID, domain.ActionGroupWorkout, total, func(ctx context.Context) (int64, error) {
		resp, err := s.client.Generate(ctx, gateway.Request{Action: domain.ActionGroupWorkout, Cost: total, Payload: payload})
		if err != nil {
			return 0, err
		}
		prescriptions, err := parseGroupArtifact(resp.Artifact, requested)
		if err != nil {
			return 0, err
		}

		var batchErr error
		result, batchErr = s.batches.CreateBatch(ctx, coachID, BatchInput{
			GroupID:       input.GroupID,
			TemplateName:  input.TemplateName,
			Date:          input.Date,
			Prescriptions: prescriptions,
		})
		if result == nil {
			return 0, batchErr
		}
		return perAthlete * int64(len(result.Created)), batchErr
	})
	return result, err
}

// parseGroupArtifact requires exactly one prescription per requested athlete.
func parseGroupArtifact(raw json.RawMessage, requested map[primitive.ObjectID]struct{}) ([]AthletePrescription, error) {
	var artifact groupWorkoutArtifact
	if err := json.Unmarshal(raw, &artifact); err != nil {
		return nil, fmt.Errorf("%w: group workout artifact: %v", gateway.ErrGatewayFailure, err)
	}

	seen := make(map[primitive.ObjectID]struct{}, len(artifact.Prescriptions))
	out := make([]AthletePrescription, 0, len(artifact.Prescriptions))
	for _, p := range artifact.Prescriptions {
		id, err := primitive.ObjectIDFromHex(p.AthleteID)
		if err != nil {
			return nil, fmt.Errorf("%w: group workout artifact: bad athlete id %q", gateway.ErrGatewayFailure, p.AthleteID)
		}
		if _, ok := requested[id]; !ok {
			return nil, fmt.Errorf("%w: group workout artifact: unexpected athlete %s", gateway.ErrGatewayFailure, p.AthleteID)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: group workout artifact: athlete %s listed twice", gateway.ErrGatewayFailure, p.AthleteID)
		}
		seen[id] = struct{}{}
		out = append(out, AthletePrescription{AthleteID: id, Exercises: p.Exercises})
	}
	if len(seen) != len(requested) {
		return nil, fmt.Errorf("%w: group workout artifact covers %d of %d athletes", gateway.ErrGatewayFailure, len(seen), len(requested))
	}
	return out, nil
}
