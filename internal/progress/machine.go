package progress

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/redis/go-redis/v9"

	"github.com/Proton-105/lesson-ledger/internal/auth"
	apperrors "github.com/Proton-105/lesson-ledger/internal/errors"
	"github.com/Proton-105/lesson-ledger/internal/instruction"
	"github.com/Proton-105/lesson-ledger/internal/pda"
)

const (
	accountLockKeyPrefix = "progress:lock:"
	defaultLockTTL       = 5 * time.Second

	// DefaultMaxLessons is the number of lesson ids an account has room for.
	DefaultMaxLessons = 10
	// DefaultMaxLessonIDLength is the longest accepted lesson id in bytes.
	DefaultMaxLessonIDLength = 32
)

var (
	transitionRecorder  = func(kind, from, to string) {}
	instructionRecorder = func(kind, outcome string, duration time.Duration) {}
)

// RegisterTransitionRecorder allows external packages to observe account transitions.
func RegisterTransitionRecorder(recorder func(kind, from, to string)) {
	if recorder == nil {
		transitionRecorder = func(string, string, string) {}
		return
	}

	transitionRecorder = recorder
}

// RegisterInstructionRecorder allows external packages to observe executed instructions.
func RegisterInstructionRecorder(recorder func(kind, outcome string, duration time.Duration)) {
	if recorder == nil {
		instructionRecorder = func(string, string, time.Duration) {}
		return
	}

	instructionRecorder = recorder
}

// CommitHook is called after a mutation has been persisted.
type CommitHook func(ctx context.Context, p *UserProgress)

// Limits bounds the size of a progress account.
type Limits struct {
	MaxLessons        int
	MaxLessonIDLength int
}

// Result describes the outcome of an executed instruction.
type Result struct {
	Signature string        `json:"signature,omitempty"`
	Kind      string        `json:"instruction"`
	Account   string        `json:"account"`
	Duplicate bool          `json:"duplicate,omitempty"`
	Progress  *UserProgress `json:"-"`
}

// Ledger applies initialize_user and complete_lesson to progress accounts.
type Ledger struct {
	deriver     *pda.Deriver
	storage     Storage
	auth        auth.Authenticator
	log         *slog.Logger
	redisClient *redis.Client
	lockTTL     time.Duration
	limits      Limits
	onCommit    CommitHook
}

// Option customises a Ledger.
type Option func(*Ledger)

// WithLocker enables per-account Redis locks.
func WithLocker(client *redis.Client, ttl time.Duration) Option {
	return func(l *Ledger) {
		l.redisClient = client
		if ttl > 0 {
			l.lockTTL = ttl
		}
	}
}

// WithLimits overrides the account size limits.
func WithLimits(limits Limits) Option {
	return func(l *Ledger) {
		if limits.MaxLessons > 0 {
			l.limits.MaxLessons = limits.MaxLessons
		}
		if limits.MaxLessonIDLength > 0 {
			l.limits.MaxLessonIDLength = limits.MaxLessonIDLength
		}
	}
}

// WithCommitHook registers fn to run after every persisted mutation.
func WithCommitHook(fn CommitHook) Option {
	return func(l *Ledger) {
		l.onCommit = fn
	}
}

// NewLedger creates a ledger over storage. authenticator may be nil when only the direct methods are used.
func NewLedger(deriver *pda.Deriver, storage Storage, authenticator auth.Authenticator, log *slog.Logger, opts ...Option) *Ledger {
	if log == nil {
		log = slog.Default()
	}

	l := &Ledger{
		deriver: deriver,
		storage: storage,
		auth:    authenticator,
		log:     log,
		lockTTL: defaultLockTTL,
		limits: Limits{
			MaxLessons:        DefaultMaxLessons,
			MaxLessonIDLength: DefaultMaxLessonIDLength,
		},
	}
	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Deriver returns the address deriver used by the ledger.
func (l *Ledger) Deriver() *pda.Deriver {
	return l.deriver
}

// Execute authenticates a signed submission and applies its instruction.
func (l *Ledger) Execute(ctx context.Context, sub instruction.Submission) (Result, error) {
	if l.auth == nil {
		return Result{}, apperrors.NewInternalError(errors.New("ledger has no authenticator"))
	}

	ix, err := l.auth.Authenticate(ctx, sub)
	if err != nil {
		l.log.Warn("submission rejected", "signer", sub.Signer.String(), "error", err)
		return Result{}, err
	}

	var result Result
	switch ix.Kind {
	case instruction.KindInitializeUser:
		result, err = l.InitializeUser(ctx, sub.Signer, ix.UserProgress)
	case instruction.KindCompleteLesson:
		result, err = l.CompleteLesson(ctx, sub.Signer, ix.UserProgress, *ix.Lesson)
	default:
		err = apperrors.NewInvalidArgumentError("unsupported instruction %q", ix.Kind)
	}
	if err != nil {
		return Result{}, err
	}

	result.Signature = sub.ID()
	return result, nil
}

// InitializeUser creates the zeroed progress account of signer at account.
func (l *Ledger) InitializeUser(ctx context.Context, signer, account solana.PublicKey) (result Result, err error) {
	started := time.Now()
	defer func() { l.observe(instruction.KindInitializeUser, started, err) }()

	derived, err := l.ownAccount(signer, account)
	if err != nil {
		return Result{}, err
	}

	if err := l.lock(ctx, account); err != nil {
		return Result{}, err
	}
	defer l.unlock(ctx, account)

	p := &UserProgress{
		Address:          account,
		Owner:            signer,
		CompletedLessons: []string{},
		Bump:             derived.Bump,
	}
	if err := l.storage.Create(ctx, p); err != nil {
		if errors.Is(err, apperrors.ErrAlreadyInitialized) {
			l.log.Warn("progress account already initialized", "account", account.String(), "user", signer.String())
		}
		return Result{}, err
	}

	l.transition(instruction.KindInitializeUser, StateUninitialized, StateActive)
	l.log.Info("User progress initialized", "user", signer.String(), "account", account.String(), "bump", derived.Bump)
	l.commit(ctx, p)

	return Result{Kind: string(instruction.KindInitializeUser), Account: account.String(), Progress: p}, nil
}

// CompleteLesson records lessonID for the owner of account and credits points and reward once.
func (l *Ledger) CompleteLesson(ctx context.Context, signer, account solana.PublicKey, args instruction.CompleteLessonArgs) (result Result, err error) {
	started := time.Now()
	defer func() { l.observe(instruction.KindCompleteLesson, started, err) }()

	if args.LessonID == "" {
		return Result{}, apperrors.NewInvalidArgumentError("lesson id must not be empty")
	}
	if len(args.LessonID) > l.limits.MaxLessonIDLength {
		return Result{}, apperrors.NewInvalidArgumentError("lesson id is %d bytes, max %d", len(args.LessonID), l.limits.MaxLessonIDLength)
	}

	// The lock is only taken on the signer's own account.
	if _, err := l.ownAccount(signer, account); err != nil {
		l.log.Warn("unauthorized lesson completion", "account", account.String(), "signer", signer.String(), "error", err)
		return Result{}, err
	}

	if err := l.lock(ctx, account); err != nil {
		return Result{}, err
	}
	defer l.unlock(ctx, account)

	current, err := l.storage.Load(ctx, account)
	if err != nil {
		return Result{}, err
	}
	if err := l.authorize(signer, current); err != nil {
		l.log.Warn("unauthorized lesson completion", "account", account.String(), "signer", signer.String(), "error", err)
		return Result{}, err
	}

	duplicate := false
	updated, err := l.storage.Update(ctx, account, func(p *UserProgress) error {
		if err := l.authorize(signer, p); err != nil {
			return err
		}
		if p.HasCompleted(args.LessonID) {
			duplicate = true
			return nil
		}
		return l.apply(p, args)
	})
	if err != nil {
		return Result{}, err
	}

	result = Result{Kind: string(instruction.KindCompleteLesson), Account: account.String(), Duplicate: duplicate, Progress: updated}
	if duplicate {
		l.log.Info("Lesson already completed", "lesson_id", args.LessonID, "account", account.String())
		return result, nil
	}

	l.transition(instruction.KindCompleteLesson, StateActive, StateActive)
	l.log.Info("Lesson completed",
		"lesson_id", args.LessonID,
		"account", account.String(),
		"points", updated.Points,
		"allocated_balance", updated.AllocatedBalance,
	)
	l.commit(ctx, updated)

	return result, nil
}

// Fetch returns the record stored at address.
func (l *Ledger) Fetch(ctx context.Context, address solana.PublicKey) (*UserProgress, error) {
	return l.storage.Load(ctx, address)
}

// FetchByUser derives the account of user and returns its record.
func (l *Ledger) FetchByUser(ctx context.Context, user solana.PublicKey) (*UserProgress, error) {
	derived, err := l.deriver.Derive(user)
	if err != nil {
		return nil, err
	}
	return l.storage.Load(ctx, derived.Address)
}

// List returns every stored record.
func (l *Ledger) List(ctx context.Context) ([]*UserProgress, error) {
	return l.storage.List(ctx)
}

// ownAccount derives the progress account of signer and checks it is account.
func (l *Ledger) ownAccount(signer, account solana.PublicKey) (pda.Derivation, error) {
	derived, err := l.deriver.Derive(signer)
	if err != nil {
		return pda.Derivation{}, err
	}
	if !derived.Address.Equals(account) {
		return pda.Derivation{}, apperrors.NewUnauthorizedError("account %s is not the progress account of %s", account, signer)
	}
	return derived, nil
}

func (l *Ledger) authorize(signer solana.PublicKey, p *UserProgress) error {
	if !p.Owner.Equals(signer) {
		return apperrors.NewUnauthorizedError("signer %s does not own account %s", signer, p.Address)
	}
	return l.deriver.Verify(signer, p.Address, p.Bump)
}

func (l *Ledger) apply(p *UserProgress, args instruction.CompleteLessonArgs) error {
	if len(p.CompletedLessons) >= l.limits.MaxLessons {
		return apperrors.NewRecordCapacityExceededError(l.limits.MaxLessons)
	}
	if uint64(p.Points)+uint64(args.PointsAwarded) > math.MaxUint32 {
		return apperrors.NewArithmeticOverflowError("points")
	}
	if p.AllocatedBalance > math.MaxUint64-args.RewardAmount {
		return apperrors.NewArithmeticOverflowError("allocated_balance")
	}

	p.CompletedLessons = append(p.CompletedLessons, args.LessonID)
	p.Points += args.PointsAwarded
	p.AllocatedBalance += args.RewardAmount
	return nil
}

func (l *Ledger) transition(kind instruction.Kind, from, to AccountState) {
	if !IsTransitionAllowed(kind, from, to) {
		l.log.Error("unexpected account transition", "instruction", kind, "from", from, "to", to)
		return
	}
	transitionRecorder(string(kind), string(from), string(to))
}

func (l *Ledger) commit(ctx context.Context, p *UserProgress) {
	if l.onCommit == nil {
		return
	}
	l.onCommit(ctx, p.Clone())
}

func (l *Ledger) observe(kind instruction.Kind, started time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			outcome = string(appErr.Kind)
		}
	}
	instructionRecorder(string(kind), outcome, time.Since(started))
}

func (l *Ledger) lock(ctx context.Context, account solana.PublicKey) error {
	if l.redisClient == nil {
		return nil
	}

	key := accountLockKeyPrefix + account.String()
	acquired, err := l.redisClient.SetNX(ctx, key, 1, l.lockTTL).Result()
	if err != nil {
		l.log.Error("failed to acquire account lock", "account", account.String(), "error", err)
		return apperrors.NewStorageError(err)
	}

	if !acquired {
		l.log.Warn("account lock already held", "account", account.String())
		return apperrors.NewAccountLockedError(account.String())
	}

	return nil
}

func (l *Ledger) unlock(ctx context.Context, account solana.PublicKey) {
	if l.redisClient == nil {
		return
	}

	key := accountLockKeyPrefix + account.String()
	if err := l.redisClient.Del(context.WithoutCancel(ctx), key).Err(); err != nil {
		l.log.Error("failed to release account lock", "account", account.String(), "error", err)
	}
}
