// Package equipment implements the lending queue: enrolling, dropping out,
// offering an item for hand-off and transferring it to the next person.
package equipment

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/ppissanetzky/barcode-sub000/internal/ban"
	"github.com/ppissanetzky/barcode-sub000/internal/directory"
	"github.com/ppissanetzky/barcode-sub000/internal/metrics"
	"github.com/ppissanetzky/barcode-sub000/internal/model"
	"github.com/ppissanetzky/barcode-sub000/internal/notify"
	"github.com/ppissanetzky/barcode-sub000/internal/queue"
	"github.com/ppissanetzky/barcode-sub000/internal/settings"
	"github.com/ppissanetzky/barcode-sub000/internal/sms"
	"github.com/ppissanetzky/barcode-sub000/internal/store"
)

// MaxOtpAttempts is how many incorrect codes a passcode survives.
const MaxOtpAttempts = 5

// Deps are the collaborators of a Service.
type Deps struct {
	DB        *sql.DB
	Directory directory.Directory
	Projector *queue.Projector
	Policy    ban.Policy
	Settings  *settings.Settings
	Notifier  *notify.Async
	SMS       sms.Sender
}

// Service runs the queue operations.
type Service struct {
	db        *sql.DB
	dir       directory.Directory
	projector *queue.Projector
	policy    ban.Policy
	settings  *settings.Settings
	notifier  *notify.Async
	sms       sms.Sender

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// NewCode generates passcodes. Defaults to six random digits.
	NewCode func() (string, error)

	hashCost int
}

// New creates a service.
func New(d Deps) *Service {
	policy := d.Policy
	if policy == nil {
		policy = ban.Never
	}
	p := d.Projector
	if p == nil {
		p = queue.NewProjector(d.DB, d.Directory)
	}
	return &Service{
		db:        d.DB,
		dir:       d.Directory,
		projector: p,
		policy:    policy,
		settings:  d.Settings,
		notifier:  d.Notifier,
		sms:       d.SMS,
		Now:       time.Now,
		NewCode:   randomCode,
		hashCost:  bcrypt.DefaultCost,
	}
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generating code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func (s *Service) now() time.Time {
	return s.Now().UTC()
}

// record counts the outcome of an operation.
func record(op string, err error) {
	result := "ok"
	if err != nil {
		result = string(KindOf(err))
		if result == "" {
			result = "error"
		}
	}
	metrics.IncQueueOp(op, result)
}

func displayName(u *model.User, id int64) string {
	if u == nil || u.Name == "" {
		return fmt.Sprintf("user #%d", id)
	}
	return u.Name
}

// Items lists every item, marking the ones userID is waiting for or holds.
func (s *Service) Items(ctx context.Context, userID int64) ([]model.UserItem, error) {
	return store.ListItemsForUser(ctx, s.db, userID)
}

// View returns the current queue of an item.
func (s *Service) View(ctx context.Context, itemID int64) (*queue.View, error) {
	v, err := s.projector.Build(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, newError(InvalidItem, "item %d does not exist", itemID)
	}
	return v, nil
}

// Recipients lists who the item can be handed to.
func (s *Service) Recipients(ctx context.Context, itemID int64) ([]queue.Recipient, error) {
	v, err := s.View(ctx, itemID)
	if err != nil {
		return nil, err
	}
	all, err := s.projector.Recipients(ctx, v)
	if err != nil || !s.settings.StrictOrder() {
		return all, err
	}
	first := v.FirstWaiter()
	out := all[:0]
	for _, r := range all {
		if !r.Waiting || (first != nil && r.UserID == first.UserID) {
			out = append(out, r)
		}
	}
	return out, nil
}

// History lists the completed holds of an item.
func (s *Service) History(ctx context.Context, itemID int64) ([]model.HistoryRecord, error) {
	item, err := store.GetItem(ctx, s.db, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, newError(InvalidItem, "item %d does not exist", itemID)
	}
	return store.ListItemHistory(ctx, s.db, itemID)
}

func (s *Service) allowedUser(ctx context.Context, userID int64) (*model.User, error) {
	u, err := s.dir.LookupUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil || !u.Allowed {
		return nil, newError(NotAllowed, "you are not allowed to take part in the equipment program")
	}
	return u, nil
}

func (s *Service) activeBan(ctx context.Context, userID int64) (*model.Ban, error) {
	b, err := store.GetBan(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if !b.Active(s.now()) {
		return nil, nil
	}
	return b, nil
}

// EnrollRequest asks to join an item's queue.
type EnrollRequest struct {
	ItemID   int64
	UserID   int64
	Phone    string
	Location string

	// Code is the passcode sent by RequestCode. Equipment holders don't
	// need one.
	Code string
}

// Enroll adds the user to the end of an item's queue.
func (s *Service) Enroll(ctx context.Context, req EnrollRequest) (v *queue.View, err error) {
	defer func() { record("enroll", err) }()

	item, err := store.GetItem(ctx, s.db, req.ItemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, newError(InvalidItem, "item %d does not exist", req.ItemID)
	}

	user, err := s.allowedUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	exempt := user.CanHoldEquipment

	existing, err := store.GetQueueEntry(ctx, s.db, req.ItemID, req.UserID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, newError(AlreadyInQueue, "you are already in the queue for %s", item.Name)
	}

	if !exempt {
		b, err := s.activeBan(ctx, req.UserID)
		if err != nil {
			return nil, err
		}
		if b != nil {
			return nil, newError(Banned, "you cannot join any queue until %s", b.EndsOn.Format("January 2, 2006"))
		}
	}

	var phone string
	if req.Phone != "" {
		if phone, err = sms.NormalizePhone(req.Phone); err != nil {
			return nil, newError(InvalidPhone, "%q is not a valid phone number", req.Phone)
		}
	}

	if !exempt {
		if err := s.checkCode(ctx, req.UserID, phone, req.Code); err != nil {
			return nil, err
		}
	}

	location := req.Location
	if location == "" {
		location = user.Location
	}

	err = store.InsertIntoQueue(ctx, s.db, &model.QueueEntry{
		ItemID:   req.ItemID,
		UserID:   req.UserID,
		Phone:    phone,
		Location: location,
		AddedAt:  s.now(),
	}, !exempt)
	if errors.Is(err, store.ErrAlreadyInQueue) {
		return nil, newError(AlreadyInQueue, "you are already in the queue for %s", item.Name)
	}
	if err != nil {
		return nil, err
	}

	slog.Info("user enrolled", "item", item.ID, "user", req.UserID)
	return s.View(ctx, req.ItemID)
}

func (s *Service) checkCode(ctx context.Context, userID int64, phone, code string) error {
	if phone == "" {
		return newError(OtpRequired, "a phone number and code are required")
	}
	otp, err := store.GetOtp(ctx, s.db, userID)
	if err != nil {
		return err
	}
	if otp == nil || otp.Phone != phone {
		return newError(OtpRequired, "request a code for %s first", phone)
	}
	if s.now().Sub(otp.CreatedAt) > s.settings.OtpValidity() {
		return newError(OtpExpired, "the code has expired, request a new one")
	}
	if code == "" || bcrypt.CompareHashAndPassword([]byte(otp.CodeHash), []byte(code)) != nil {
		attempts, err := store.RecordOtpFailure(ctx, s.db, userID, otp.CreatedAt)
		if err != nil {
			return err
		}
		if attempts >= MaxOtpAttempts {
			if err := store.DeleteOtp(ctx, s.db, userID); err != nil {
				return err
			}
			return newError(OtpExpired, "too many incorrect codes, request a new one")
		}
		return newError(OtpIncorrect, "the code is incorrect")
	}
	return nil
}

// CodeResult is the outcome of RequestCode.
type CodeResult struct {
	// NotNeeded is set for equipment holders, who enroll without a code.
	NotNeeded bool      `json:"not_needed"`
	Phone     string    `json:"phone,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// RequestCode texts a fresh passcode to phone.
func (s *Service) RequestCode(ctx context.Context, userID int64, phone string) (res *CodeResult, err error) {
	defer func() { record("request_code", err) }()

	user, err := s.allowedUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.CanHoldEquipment {
		return &CodeResult{NotNeeded: true}, nil
	}

	normalized, err := sms.NormalizePhone(phone)
	if err != nil {
		return nil, newError(InvalidPhone, "%q is not a valid phone number", phone)
	}

	now := s.now()
	existing, err := store.GetOtp(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil && now.Sub(existing.SentAt) < s.settings.OtpCooldown() {
		return nil, newError(OtpRateLimited, "a code was just sent, wait a minute before asking again")
	}

	code, err := s.NewCode()
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("hashing code: %w", err)
	}

	if err := store.SaveOtp(ctx, s.db, &model.OtpEntry{
		UserID:    userID,
		Phone:     normalized,
		CodeHash:  string(hash),
		CreatedAt: now,
		SentAt:    now,
	}); err != nil {
		return nil, err
	}

	text := fmt.Sprintf("Your BARcode verification code is %s", code)
	s.notifier.Go("sms", func(ctx context.Context) error {
		return s.sms.Send(ctx, normalized, text)
	})

	return &CodeResult{Phone: normalized, ExpiresAt: now.Add(s.settings.OtpValidity())}, nil
}

// DropOut removes a waiting user from an item's queue.
func (s *Service) DropOut(ctx context.Context, itemID, userID int64) (v *queue.View, err error) {
	defer func() { record("drop_out", err) }()

	item, err := store.GetItem(ctx, s.db, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, newError(InvalidItem, "item %d does not exist", itemID)
	}

	err = store.RemoveFromQueue(ctx, s.db, itemID, userID)
	switch {
	case errors.Is(err, store.ErrNotInQueue):
		return nil, newError(NotInQueue, "you are not in the queue for %s", item.Name)
	case errors.Is(err, store.ErrHolding):
		return nil, newError(CannotDropOut, "you have %s, transfer it to someone instead", item.Name)
	case err != nil:
		return nil, err
	}

	slog.Info("user dropped out", "item", itemID, "user", userID)
	return s.View(ctx, itemID)
}

// MarkDone records that the holder is ready to hand the item off. Calling
// it again changes nothing.
func (s *Service) MarkDone(ctx context.Context, itemID, userID int64) (v *queue.View, err error) {
	defer func() { record("mark_done", err) }()

	item, err := store.GetItem(ctx, s.db, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, newError(InvalidItem, "item %d does not exist", itemID)
	}

	before, err := store.GetQueueEntry(ctx, s.db, itemID, userID)
	if err != nil {
		return nil, err
	}
	if before == nil || !before.Holding() {
		return nil, newError(NotYours, "you don't have %s", item.Name)
	}

	if before.DateDone == nil {
		_, err := store.MarkDone(ctx, s.db, itemID, userID, s.now())
		if errors.Is(err, store.ErrNotHolding) {
			return nil, newError(NotYours, "you don't have %s", item.Name)
		}
		if err != nil {
			return nil, err
		}
		slog.Info("item available", "item", itemID, "user", userID)
	}

	v, err = s.View(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if before.DateDone == nil {
		h := v.Have(userID)
		var u *model.User
		if h != nil {
			u = h.User
		}
		s.notifier.PostToThread(item.ThreadID, fmt.Sprintf("%s is done with the %s and ready to pass it on.",
			displayName(u, userID), item.Name))
	}
	return v, nil
}

// TransferRequest hands an item from one user to another.
type TransferRequest struct {
	ItemID     int64
	ActorID    int64
	FromUserID int64
	ToUserID   int64

	// Admin lets the actor transfer on behalf of others.
	Admin bool
}

// selfClaimed reports whether the recipient is recording the transfer
// without the holder or an admin. Such a recipient must be next in line.
func (r TransferRequest) selfClaimed() bool {
	return !r.Admin && r.ActorID == r.ToUserID && r.ActorID != r.FromUserID
}

// TransferResult is the queue after a transfer. Ban is only set when the
// actor is the outgoing holder and was banned by this transfer.
type TransferResult struct {
	View *queue.View `json:"view"`
	Ban  *model.Ban  `json:"ban,omitempty"`
}

// Transfer hands the item from its holder to a waiter or to an equipment
// holder. The outgoing holder's record is kept and the ban policy runs.
func (s *Service) Transfer(ctx context.Context, req TransferRequest) (res *TransferResult, err error) {
	defer func() { record("transfer", err) }()

	v, err := s.projector.Build(ctx, req.ItemID)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, newError(InvalidItem, "item %d does not exist", req.ItemID)
	}
	item := v.Item

	if !req.Admin && req.ActorID != req.FromUserID && req.ActorID != req.ToUserID {
		return nil, newError(NotYours, "only the holder or the recipient can record a transfer")
	}

	src := v.Have(req.FromUserID)
	if src == nil {
		return nil, newError(NotYours, "%s is not held by user #%d", item.Name, req.FromUserID)
	}
	if req.ToUserID == req.FromUserID || v.HasIt(req.ToUserID) {
		return nil, newError(InvalidRecipient, "the recipient already has %s", item.Name)
	}

	dst, err := s.dir.LookupUser(ctx, req.ToUserID)
	if err != nil {
		return nil, err
	}
	if !s.eligible(v, req.ToUserID, dst, s.settings.StrictOrder() || req.selfClaimed()) {
		return nil, newError(InvalidRecipient, "user #%d cannot receive %s", req.ToUserID, item.Name)
	}

	if dst == nil || !dst.CanHoldEquipment {
		b, err := s.activeBan(ctx, req.ToUserID)
		if err != nil {
			return nil, err
		}
		if b != nil {
			return nil, newError(Banned, "%s is banned until %s", displayName(dst, req.ToUserID), b.EndsOn.Format("January 2, 2006"))
		}
	}

	now := s.now()
	params := store.TransferParams{
		ItemID:     req.ItemID,
		FromUserID: req.FromUserID,
		ToUserID:   req.ToUserID,
		Now:        now,
	}
	if dst != nil {
		params.ToLocation = dst.Location
	}
	if !src.Exempt() {
		params.Evaluate = func(history []model.HistoryRecord) *model.Ban {
			return s.policy.Evaluate(req.FromUserID, history, false, now)
		}
	}

	out, err := store.TransferItem(ctx, s.db, params)
	switch {
	case errors.Is(err, store.ErrItemNotFound):
		return nil, newError(InvalidItem, "item %d does not exist", req.ItemID)
	case errors.Is(err, store.ErrNotHolding):
		return nil, newError(NotYours, "%s is not held by user #%d", item.Name, req.FromUserID)
	case errors.Is(err, store.ErrAlreadyHolding):
		return nil, newError(InvalidRecipient, "the recipient already has %s", item.Name)
	case errors.Is(err, store.ErrBanned):
		return nil, newError(Banned, "%s is banned", displayName(dst, req.ToUserID))
	case err != nil:
		return nil, err
	}

	slog.Info("item transferred", "item", item.ID, "from", req.FromUserID, "to", req.ToUserID,
		"days", out.History.Days)

	from := displayName(src.User, req.FromUserID)
	to := displayName(dst, req.ToUserID)
	s.notifier.PostToThread(item.ThreadID, fmt.Sprintf("%s passed the %s to %s after %d days.",
		from, item.Name, to, out.History.Days))

	if out.Ban != nil {
		slog.Info("user banned", "user", req.FromUserID, "until", out.Ban.EndsOn, "reason", out.Ban.Reason)
		until := out.Ban.EndsOn.Format("January 2, 2006")
		s.notifier.StartPrivateMessage([]int64{req.FromUserID}, "Equipment program ban",
			fmt.Sprintf("You held the %s for %d days. You will not be able to join equipment queues until %s.",
				item.Name, out.History.Days, until))
		s.notifier.PostToThread(s.settings.ModerationThreadID(), fmt.Sprintf("%s was banned from the equipment program until %s: %s.",
			from, until, out.Ban.Reason))
	}

	view, err := s.View(ctx, req.ItemID)
	if err != nil {
		return nil, err
	}
	res = &TransferResult{View: view}
	if req.ActorID == req.FromUserID {
		res.Ban = out.Ban
	}
	return res, nil
}

// eligible reports whether userID may receive the item: a waiter (the first
// one when strict) or an allowed equipment holder.
func (s *Service) eligible(v *queue.View, userID int64, u *model.User, strict bool) bool {
	if u != nil && u.CanHoldEquipment && u.Allowed {
		return true
	}
	if !v.IsWaiting(userID) {
		return false
	}
	if strict {
		return v.FirstWaiter().UserID == userID
	}
	return true
}
