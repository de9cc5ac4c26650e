package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/tipline/go-tipline-server/envelope"
	"github.com/tipline/go-tipline-server/global"
	"github.com/tipline/go-tipline-server/repository"
	"github.com/tipline/go-tipline-server/types"
	"github.com/tipline/go-tipline-server/util"
)

const dayMillis = int64(24 * 60 * 60 * 1000)

// SubmissionService is the sealed submission store and intake pipeline. A
// submission and all of its wrapped keys live in a single document, so the
// save below is the atomic commit point and the delete in Purge is the
// atomic removal of ciphertext and keys together.
type SubmissionService struct {
	submissionRepo   repository.Repository
	commentRepo      repository.Repository
	messageRepo      repository.Repository
	recipientService *RecipientService
	settingsService  *SettingsService
	auditService     *AuditService
	s3Service        *S3Service
	env              *types.Environment
	purgeLock        *keyedLock
}

func NewSubmissionService(dbSelector repository.DBSelector, recipientService *RecipientService, settingsService *SettingsService, s3Service *S3Service, env *types.Environment) *SubmissionService {
	submissionRepo, err := dbSelector.ChooseDB(repository.Submission)
	if err != nil {
		panic(err)
	}
	commentRepo, err := dbSelector.ChooseDB(repository.Comment)
	if err != nil {
		panic(err)
	}
	messageRepo, err := dbSelector.ChooseDB(repository.Message)
	if err != nil {
		panic(err)
	}
	return &SubmissionService{
		submissionRepo:   submissionRepo,
		commentRepo:      commentRepo,
		messageRepo:      messageRepo,
		recipientService: recipientService,
		settingsService:  settingsService,
		auditService:     NewAuditService(dbSelector),
		s3Service:        s3Service,
		env:              env,
		purgeLock:        newKeyedLock(),
	}
}

// Receive seals an anonymous submission, routes it and stores it. Nothing is
// persisted until every stage succeeded; a failure before the save leaves no
// trace of the submitter's material. The receipt code in the result is shown
// exactly once, only its hash is stored.
func (ss *SubmissionService) Receive(input *types.InputSubmission) (*types.OutputSubmissionAccepted, error) {
	plaintext, dErr := base64.StdEncoding.DecodeString(input.Payload)
	if dErr != nil {
		return nil, types.ErrBadRequest
	}
	if int64(len(plaintext)) > global.Conf.Intake.MaxPayloadBytes {
		return nil, types.ErrBadRequest
	}
	if len(input.Attachments) > 0 && !global.Conf.Storage.Enabled {
		return nil, types.ErrBadRequest
	}

	snapshot, sErr := ss.recipientService.Snapshot()
	if sErr != nil {
		return nil, sErr
	}
	recipients, rErr := Route(snapshot, input.Category)
	if rErr != nil {
		return nil, rErr
	}

	publicKeys := make(map[string][]byte, len(recipients))
	for _, r := range recipients {
		raw, kErr := EncryptionKeyBytes(r)
		if kErr != nil {
			return nil, types.ErrCryptoFailure
		}
		publicKeys[r.UnderscoreID] = raw
	}

	sealed, seErr := envelope.Seal(plaintext, publicKeys)
	if seErr != nil {
		return nil, seErr
	}
	defer sealed.Zero()

	id := uuid.NewString()
	receipt, rcErr := util.GenerateReceipt()
	if rcErr != nil {
		return nil, types.ErrCryptoFailure
	}
	receiptHash, rhErr := util.ScryptReceipt(receipt, id)
	if rhErr != nil {
		return nil, types.ErrCryptoFailure
	}

	attachments, aErr := ss.storeAttachments(id, sealed.ContentKey, input.Attachments)
	if aErr != nil {
		return nil, aErr
	}

	now := time.Now().UTC().UnixMilli()
	policy, pErr := ss.settingsService.GetRetention()
	if pErr != nil {
		ss.enqueueAttachmentDeletes(id, attachments)
		return nil, pErr
	}

	urgency := types.UrgencyNormal
	if input.Metadata != nil && input.Metadata.Urgency != "" {
		urgency = input.Metadata.Urgency
	}

	submission := &types.Submission{
		Ciphertext:  base64.StdEncoding.EncodeToString(sealed.Box),
		ContentHash: sealed.ContentHash,
		Category:    input.Category,
		Urgency:     urgency,
		Status:      types.SubmissionStatusRouted,
		ReceiptHash: receiptHash,
		Created:     now,
		Expires:     now + int64(policy.ExpiryDays)*dayMillis,
		Attachments: attachments,
	}
	submission.UnderscoreID = id
	for _, r := range recipients {
		submission.WrappedKeys = append(submission.WrappedKeys, &types.WrappedKey{
			SubmissionID:         id,
			RecipientID:          r.UnderscoreID,
			WrappedKey:           base64.StdEncoding.EncodeToString(sealed.Capsules[r.UnderscoreID]),
			NotificationsEnabled: true,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	if err := ss.submissionRepo.Save(ctx, id, submission); err != nil {
		// the save is the commit point; remove any blobs uploaded above
		ss.enqueueAttachmentDeletes(id, attachments)
		return nil, err
	}

	ss.notifyRecipients(submission)

	return &types.OutputSubmissionAccepted{ID: id, Receipt: receipt}, nil
}

// storeAttachments encrypts each blob under the submission's content key and
// uploads it. Called before the submission document exists; on any failure
// already uploaded objects are queued for deletion and nothing is kept.
func (ss *SubmissionService) storeAttachments(submissionID string, contentKey []byte, blobs []*types.InputSubmissionBlob) ([]*types.Attachment, error) {
	if len(blobs) == 0 {
		return nil, nil
	}
	attachments := make([]*types.Attachment, 0, len(blobs))
	for i, blob := range blobs {
		content, dErr := base64.StdEncoding.DecodeString(blob.Content)
		if dErr != nil {
			ss.enqueueAttachmentDeletes(submissionID, attachments)
			return nil, types.ErrBadRequest
		}
		if int64(len(content)) > global.Conf.Intake.MaxAttachmentBytes {
			ss.enqueueAttachmentDeletes(submissionID, attachments)
			return nil, types.ErrBadRequest
		}
		encrypted, eErr := envelope.EncryptBlob(contentKey, content)
		if eErr != nil {
			ss.enqueueAttachmentDeletes(submissionID, attachments)
			return nil, eErr
		}
		objectKey := fmt.Sprintf("submissions/%s/%d", submissionID, i)
		if uErr := ss.s3Service.UploadAttachment(global.Conf.Storage.Bucket, objectKey, encrypted); uErr != nil {
			ss.enqueueAttachmentDeletes(submissionID, attachments)
			return nil, types.ErrStoreUnavailable
		}
		attachments = append(attachments, &types.Attachment{
			ObjectKey:   objectKey,
			Name:        blob.Name,
			ContentType: blob.ContentType,
			Size:        int64(len(content)),
		})
	}
	return attachments, nil
}

// notifyRecipients queues one notification task per recipient that opted in.
// High urgency submissions go on the critical queue, which the task server
// drains ahead of the default one. Failures are logged; the stored submission
// is never rolled back because a notification could not be queued.
func (ss *SubmissionService) notifyRecipients(submission *types.Submission) {
	if ss.env == nil || ss.env.TaskClient == nil {
		return
	}
	queueName := "default"
	if submission.Urgency == types.UrgencyHigh {
		queueName = "critical"
	}
	for _, wk := range submission.WrappedKeys {
		if !wk.NotificationsEnabled {
			continue
		}
		task, tErr := types.NewNotifyTask(&types.NotifyTask{
			RecipientID:  wk.RecipientID,
			SubmissionID: submission.UnderscoreID,
		})
		if tErr != nil {
			level.Error(global.Logger).Log("msg", "failed to create notify task", "err", tErr)
			continue
		}
		_, qErr := ss.env.TaskClient.Enqueue(task,
			asynq.Queue(queueName),
			asynq.MaxRetry(3),
			asynq.Timeout(60*time.Second),
			asynq.TaskID(submission.UnderscoreID+":"+wk.RecipientID),
			asynq.Unique(time.Second*10))
		if qErr != nil {
			level.Error(global.Logger).Log("msg", "failed to enqueue notify task", "recipient", wk.RecipientID, "err", qErr)
		}
	}
}

func (ss *SubmissionService) enqueueAttachmentDeletes(submissionID string, attachments []*types.Attachment) {
	if len(attachments) == 0 {
		return
	}
	if ss.env == nil || ss.env.TaskClient == nil {
		return
	}
	for _, att := range attachments {
		task, tErr := types.NewAttachmentDeleteTask(&types.AttachmentDeleteTask{
			SubmissionID: submissionID,
			ObjectKey:    att.ObjectKey,
		})
		if tErr != nil {
			level.Error(global.Logger).Log("msg", "failed to create attachment delete task", "err", tErr)
			continue
		}
		if _, qErr := ss.env.TaskClient.Enqueue(task, asynq.MaxRetry(10), asynq.Timeout(60*time.Second)); qErr != nil {
			level.Error(global.Logger).Log("msg", "failed to enqueue attachment delete", "objectKey", att.ObjectKey, "err", qErr)
		}
	}
}

// Get returns a submission document by id
func (ss *SubmissionService) Get(id string) (*types.Submission, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	response, err := ss.submissionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	var submission types.Submission
	if mErr := repository.MapToObject(response, &submission); mErr != nil {
		return nil, mErr
	}
	return &submission, nil
}

// GetTip returns the recipient's view of a submission and records the access.
// Possession of a wrapped key is the only thing consulted; a recipient whose
// registry entry was revoked after routing still reads what was already
// sealed to them.
func (ss *SubmissionService) GetTip(recipientID string, id string) (*types.OutputTip, error) {
	submission, err := ss.Get(id)
	if err != nil {
		return nil, err
	}
	wk := submission.WrappedKeyFor(recipientID)
	if wk == nil {
		return nil, types.ErrNotAuthorized
	}

	wk.AccessCount++
	wk.LastAccess = time.Now().UTC().UnixMilli()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	if _, uErr := ss.submissionRepo.Update(ctx, id, submission); uErr != nil {
		// access bookkeeping only, the read itself still succeeds
		level.Warn(global.Logger).Log("msg", "failed to record tip access", "id", id, "err", uErr)
	}

	comments, cErr := ss.ListComments(id)
	if cErr != nil {
		level.Warn(global.Logger).Log("msg", "failed to list comments", "id", id, "err", cErr)
	}
	messages, mErr := ss.ListMessages(id)
	if mErr != nil {
		level.Warn(global.Logger).Log("msg", "failed to list messages", "id", id, "err", mErr)
	}

	return &types.OutputTip{
		ID:                   submission.UnderscoreID,
		Ciphertext:           submission.Ciphertext,
		ContentHash:          submission.ContentHash,
		Category:             submission.Category,
		Urgency:              submission.Urgency,
		Status:               submission.Status,
		WrappedKey:           wk.WrappedKey,
		Label:                wk.Label,
		NotificationsEnabled: wk.NotificationsEnabled,
		AccessCount:          wk.AccessCount,
		Created:              submission.Created,
		Expires:              submission.Expires,
		Attachments:          submission.Attachments,
		Comments:             comments,
		Messages:             messages,
	}, nil
}

type tipViewResult struct {
	TotalRows int64        `json:"total_rows"`
	Offset    int64        `json:"offset"`
	Rows      []tipViewRow `json:"rows"`
}

type tipViewRow struct {
	ID  string            `json:"id"`
	Doc *types.Submission `json:"doc"`
}

// ListTips returns the submissions routed to a recipient, newest first
func (ss *SubmissionService) ListTips(recipientID string, limit int) ([]*types.OutputTipListItem, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	query := fmt.Sprintf("_design/tips/_view/by_recipient?startkey=[%q,{}]&endkey=[%q,0]&descending=true&include_docs=true&limit=%d", recipientID, recipientID, limit)
	response, err := ss.submissionRepo.GetByID(ctx, query)
	if err != nil {
		return nil, err
	}
	var result tipViewResult
	if mErr := repository.MapToObject(response, &result); mErr != nil {
		return nil, mErr
	}

	items := make([]*types.OutputTipListItem, 0, len(result.Rows))
	for _, row := range result.Rows {
		if row.Doc == nil {
			continue
		}
		wk := row.Doc.WrappedKeyFor(recipientID)
		if wk == nil {
			continue
		}
		items = append(items, &types.OutputTipListItem{
			ID:          row.Doc.UnderscoreID,
			Category:    row.Doc.Category,
			Urgency:     row.Doc.Urgency,
			Status:      row.Doc.Status,
			Label:       wk.Label,
			AccessCount: wk.AccessCount,
			Created:     row.Doc.Created,
			Expires:     row.Doc.Expires,
		})
	}
	return items, nil
}

// Purge irreversibly deletes a submission: ciphertext and every wrapped key
// in one document delete, attachment objects queued for removal afterwards.
func (ss *SubmissionService) Purge(id string, actorID string) error {
	ss.purgeLock.Lock(id)
	defer ss.purgeLock.Unlock(id)

	submission, err := ss.Get(id)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	if dErr := ss.submissionRepo.Delete(ctx, id, submission.UnderscoreRev); dErr != nil {
		return dErr
	}

	ss.enqueueAttachmentDeletes(id, submission.Attachments)
	ss.auditService.Record(types.AuditSubmissionPurge, actorID, id, "")
	return nil
}

// Archive crypto shreds a submission: every wrapped key is removed so the
// ciphertext is permanently unreadable, while the ciphertext and metadata
// stay for the audit trail.
func (ss *SubmissionService) Archive(id string, actorID string) error {
	ss.purgeLock.Lock(id)
	defer ss.purgeLock.Unlock(id)

	submission, err := ss.Get(id)
	if err != nil {
		return err
	}
	if submission.Status == types.SubmissionStatusArchived {
		return nil
	}

	submission.WrappedKeys = []*types.WrappedKey{}
	submission.Status = types.SubmissionStatusArchived

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	if _, uErr := ss.submissionRepo.Update(ctx, id, submission); uErr != nil {
		return uErr
	}
	ss.auditService.Record(types.AuditSubmissionShred, actorID, id, "")
	return nil
}

// Postpone extends a submission's expiration by the default retention period,
// capped at the maximum retention counted from creation.
func (ss *SubmissionService) Postpone(id string, actorID string) (*types.Submission, error) {
	submission, err := ss.Get(id)
	if err != nil {
		return nil, err
	}
	policy, pErr := ss.settingsService.GetRetention()
	if pErr != nil {
		return nil, pErr
	}

	proposed := time.Now().UTC().UnixMilli() + int64(policy.ExpiryDays)*dayMillis
	ceiling := submission.Created + int64(policy.MaxExpiryDays)*dayMillis
	if proposed > ceiling {
		proposed = ceiling
	}
	if proposed <= submission.Expires {
		return submission, nil
	}
	submission.Expires = proposed

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	if _, uErr := ss.submissionRepo.Update(ctx, id, submission); uErr != nil {
		return nil, uErr
	}
	ss.auditService.Record(types.AuditExpirationChange, actorID, id, fmt.Sprintf("expires %d", proposed))
	return submission, nil
}

// SetLabel stores a recipient's private label on their wrapped key record
func (ss *SubmissionService) SetLabel(recipientID string, id string, label string) error {
	return ss.updateWrappedKey(recipientID, id, func(wk *types.WrappedKey) {
		wk.Label = label
	})
}

// SetNotifications toggles notification delivery for one recipient
func (ss *SubmissionService) SetNotifications(recipientID string, id string, enabled bool) error {
	return ss.updateWrappedKey(recipientID, id, func(wk *types.WrappedKey) {
		wk.NotificationsEnabled = enabled
	})
}

func (ss *SubmissionService) updateWrappedKey(recipientID string, id string, apply func(*types.WrappedKey)) error {
	submission, err := ss.Get(id)
	if err != nil {
		return err
	}
	wk := submission.WrappedKeyFor(recipientID)
	if wk == nil {
		return types.ErrNotAuthorized
	}
	apply(wk)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	_, uErr := ss.submissionRepo.Update(ctx, id, submission)
	return uErr
}

// AddComment appends a recipient's comment to a submission they can read
func (ss *SubmissionService) AddComment(recipientID string, id string, content string) (*types.Comment, error) {
	submission, err := ss.Get(id)
	if err != nil {
		return nil, err
	}
	if submission.WrappedKeyFor(recipientID) == nil {
		return nil, types.ErrNotAuthorized
	}

	comment := &types.Comment{
		SubmissionID: id,
		AuthorID:     recipientID,
		Content:      content,
		Created:      time.Now().UTC().UnixMilli(),
	}
	comment.UnderscoreID = uuid.NewString()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	if sErr := ss.commentRepo.Save(ctx, comment.UnderscoreID, comment); sErr != nil {
		return nil, sErr
	}
	return comment, nil
}

type commentFindResult struct {
	Docs []*types.Comment `json:"docs"`
}

// ListComments returns a submission's comments oldest first
func (ss *SubmissionService) ListComments(id string) ([]*types.Comment, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	selector := map[string]interface{}{
		"selector": map[string]interface{}{
			"submissionId": id,
		},
		"sort":  []map[string]string{{"submissionId": "asc"}, {"created": "asc"}},
		"limit": 200,
	}
	response, err := ss.commentRepo.Find(ctx, selector)
	if err != nil {
		return nil, err
	}
	var result commentFindResult
	if mErr := repository.MapToObject(response, &result); mErr != nil {
		return nil, mErr
	}
	return result.Docs, nil
}

// AddRecipientMessage stores a recipient's message to the submitter. Like
// reading the tip itself, writing into the conversation requires a wrapped
// key for the submission.
func (ss *SubmissionService) AddRecipientMessage(recipientID string, id string, content string) (*types.Message, error) {
	submission, err := ss.Get(id)
	if err != nil {
		return nil, err
	}
	if submission.WrappedKeyFor(recipientID) == nil {
		return nil, types.ErrNotAuthorized
	}
	return ss.saveMessage(&types.Message{
		SubmissionID: id,
		Author:       types.MessageAuthorRecipient,
		AuthorID:     recipientID,
		Content:      content,
	})
}

// AddSubmitterMessage stores the submitter's side of the conversation. The
// receipt code is the submitter's only credential; no identity is attached
// to the stored message.
func (ss *SubmissionService) AddSubmitterMessage(id string, receipt string, content string) (*types.Message, error) {
	submission, err := ss.Get(id)
	if err != nil {
		return nil, err
	}
	if !util.VerifyReceipt(receipt, id, submission.ReceiptHash) {
		return nil, types.ErrAuthenticationFailure
	}
	return ss.saveMessage(&types.Message{
		SubmissionID: id,
		Author:       types.MessageAuthorSubmitter,
		Content:      content,
	})
}

func (ss *SubmissionService) saveMessage(message *types.Message) (*types.Message, error) {
	message.Created = time.Now().UTC().UnixMilli()
	message.UnderscoreID = uuid.NewString()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	if err := ss.messageRepo.Save(ctx, message.UnderscoreID, message); err != nil {
		return nil, err
	}
	return message, nil
}

type messageFindResult struct {
	Docs []*types.Message `json:"docs"`
}

// ListMessages returns a submission's conversation oldest first
func (ss *SubmissionService) ListMessages(id string) ([]*types.Message, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	selector := map[string]interface{}{
		"selector": map[string]interface{}{
			"submissionId": id,
		},
		"sort":  []map[string]string{{"submissionId": "asc"}, {"created": "asc"}},
		"limit": 200,
	}
	response, err := ss.messageRepo.Find(ctx, selector)
	if err != nil {
		return nil, err
	}
	var result messageFindResult
	if mErr := repository.MapToObject(response, &result); mErr != nil {
		return nil, mErr
	}
	return result.Docs, nil
}

// CheckReceipt verifies a submitter's receipt code against the stored hash
// and returns the submission status along with any messages recipients left
// for the submitter. The submitter learns nothing beyond whether their
// material still exists, its lifecycle state and the conversation.
func (ss *SubmissionService) CheckReceipt(id string, receipt string) (string, []*types.Message, error) {
	submission, err := ss.Get(id)
	if err != nil {
		return "", nil, err
	}
	if !util.VerifyReceipt(receipt, id, submission.ReceiptHash) {
		return "", nil, types.ErrAuthenticationFailure
	}
	messages, mErr := ss.ListMessages(id)
	if mErr != nil {
		level.Warn(global.Logger).Log("msg", "failed to list messages", "id", id, "err", mErr)
	}
	return submission.Status, messages, nil
}

type expiredViewResult struct {
	TotalRows int64            `json:"total_rows"`
	Offset    int64            `json:"offset"`
	Rows      []expiredViewRow `json:"rows"`
}

type expiredViewRow struct {
	ID      string `json:"id"`
	Expires int64  `json:"key"`
	Rev     string `json:"value"`
}

// SweepExpired purges every submission past its expiry. Individual failures
// are logged and left for the next sweep, never dropped.
func (ss *SubmissionService) SweepExpired() {
	now := time.Now().UTC().UnixMilli()
	for {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		query := fmt.Sprintf("_design/retention/_view/expired?endkey=%d&limit=100", now)
		response, err := ss.submissionRepo.GetByID(ctx, query)
		cancel()
		if err != nil {
			level.Error(global.Logger).Log("msg", "expiry sweep query failed", "err", err)
			return
		}
		var expired expiredViewResult
		if mErr := repository.MapToObject(response, &expired); mErr != nil {
			level.Error(global.Logger).Log("msg", "expiry sweep mapping failed", "err", mErr)
			return
		}
		if len(expired.Rows) == 0 {
			return
		}

		purged := 0
		for _, row := range expired.Rows {
			if pErr := ss.Purge(row.ID, ""); pErr != nil {
				if errors.Is(pErr, types.ErrNotFound) {
					continue
				}
				level.Error(global.Logger).Log("msg", "expiry sweep purge failed", "id", row.ID, "err", pErr)
				continue
			}
			purged++
		}
		level.Info(global.Logger).Log("msg", "expiry sweep pass", "expired", len(expired.Rows), "purged", purged)
		if purged == 0 {
			// nothing made progress, retry on the next scheduled sweep
			return
		}
	}
}
