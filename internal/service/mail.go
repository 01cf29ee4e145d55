package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"tempmail/bot/internal/domain"
	"tempmail/bot/internal/monitoring"
	"tempmail/bot/internal/provider"
	"tempmail/bot/internal/storage"
)

const passwordLength = 12

const passwordAlphabet = "abcdefghijklmnopqrstuvwxyz" +
	"ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// MailService 封装邮箱生命周期的业务操作。
//
// 对上游（处理器）只暴露领域错误：domain.ErrNoMailbox、
// domain.ErrNoDomains、domain.ErrProvider、domain.ErrSessionNotSaved。
type MailService struct {
	provider *provider.Client
	sessions storage.SessionStore
	botStore storage.BotStore
	logger   *zap.Logger
	metrics  *monitoring.Metrics

	randMu sync.Mutex
	random *rand.Rand
}

// NewMailService 创建邮箱业务服务。
func NewMailService(client *provider.Client, sessions storage.SessionStore, botStore storage.BotStore, logger *zap.Logger, metrics *monitoring.Metrics) *MailService {
	return &MailService{
		provider: client,
		sessions: sessions,
		botStore: botStore,
		logger:   logger,
		metrics:  metrics,
		random:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Session 读取用户会话，不存在时返回 domain.ErrNotFound。
func (s *MailService) Session(userID string) (*domain.Session, error) {
	return s.sessions.Get(userID)
}

// Provision 为用户创建新的一次性邮箱。
//
// 流程：生成地址 → 生成密码 → 注册账户 → 换取令牌 → 落库。
// 远端四步全部成功但落库失败时，邮箱已经真实存在，此时返回
// 含完整凭据的会话和 domain.ErrSessionNotSaved，由调用方决定
// 如何提示用户。
func (s *MailService) Provision(ctx context.Context, userID, lang string) (*domain.Session, error) {
	email, err := s.provider.GenerateEmail(ctx)
	if err != nil {
		s.metrics.ProviderRequests.WithLabelValues("generate_email", "error").Inc()
		return nil, fmt.Errorf("failed to generate email: %w", err)
	}
	s.metrics.ProviderRequests.WithLabelValues("generate_email", "ok").Inc()

	password := s.generatePassword(passwordLength)

	account, err := s.provider.CreateAccount(ctx, email, password)
	if err != nil {
		s.metrics.ProviderRequests.WithLabelValues("create_account", "error").Inc()
		return nil, fmt.Errorf("failed to create account %s: %w", email, err)
	}
	s.metrics.ProviderRequests.WithLabelValues("create_account", "ok").Inc()

	token, err := s.provider.GetToken(ctx, email, password)
	if err != nil {
		s.metrics.ProviderRequests.WithLabelValues("get_token", "error").Inc()
		return nil, fmt.Errorf("failed to get token for %s: %w", email, err)
	}
	s.metrics.ProviderRequests.WithLabelValues("get_token", "ok").Inc()

	creds := domain.Credentials{
		Email:     email,
		Password:  password,
		Token:     token,
		AccountID: account.ID,
	}

	session := &domain.Session{
		UserID:      userID,
		Credentials: creds,
		Lang:        lang,
	}

	s.metrics.MailboxesCreated.Inc()
	if err := s.botStore.IncrementCreatedEmails(); err != nil {
		s.logger.Error("failed to increment created emails counter", zap.Error(err))
	}

	if err := s.sessions.UpsertCredentials(userID, creds, lang); err != nil {
		// 远端账户已创建，凭据只活在本次返回值里
		s.logger.Error("failed to persist session",
			zap.String("user_id", userID),
			zap.String("email", email),
			zap.Error(err))
		return session, domain.ErrSessionNotSaved
	}

	s.logger.Info("mailbox provisioned",
		zap.String("user_id", userID),
		zap.String("email", email))

	return session, nil
}

// Replace 替换用户现有邮箱。
//
// 先尽力删除旧的远端账户并清掉本地会话，再走 Provision。
// 旧账户删不掉不阻塞替换，旧凭据反正已经弃用。
func (s *MailService) Replace(ctx context.Context, userID, lang string) (*domain.Session, error) {
	session, err := s.sessions.Get(userID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	if session != nil && session.HasMailbox() {
		if ok := s.provider.DeleteAccount(ctx, session.AccountID, session.Token); !ok {
			s.metrics.ProviderRequests.WithLabelValues("delete_account", "error").Inc()
			s.logger.Warn("failed to delete old account during replace",
				zap.String("user_id", userID),
				zap.String("email", session.Email))
		} else {
			s.metrics.ProviderRequests.WithLabelValues("delete_account", "ok").Inc()
		}

		if _, err := s.sessions.Delete(userID); err != nil {
			return nil, fmt.Errorf("failed to clear session: %w", err)
		}
		s.metrics.MailboxesDeleted.Inc()
	}

	return s.Provision(ctx, userID, lang)
}

// Delete 删除用户邮箱。
//
// 本地会话无条件清除：远端删除失败时旧凭据也已作废，保留
// 它只会让用户反复撞同一个错误。没有邮箱时返回 domain.ErrNoMailbox。
func (s *MailService) Delete(ctx context.Context, userID string) error {
	session, err := s.sessions.Get(userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNoMailbox
		}
		return fmt.Errorf("failed to load session: %w", err)
	}
	if !session.HasMailbox() {
		return domain.ErrNoMailbox
	}

	if ok := s.provider.DeleteAccount(ctx, session.AccountID, session.Token); !ok {
		s.metrics.ProviderRequests.WithLabelValues("delete_account", "error").Inc()
		s.logger.Warn("failed to delete remote account",
			zap.String("user_id", userID),
			zap.String("email", session.Email))
	} else {
		s.metrics.ProviderRequests.WithLabelValues("delete_account", "ok").Inc()
	}

	if _, err := s.sessions.Delete(userID); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}

	s.metrics.MailboxesDeleted.Inc()
	s.logger.Info("mailbox deleted", zap.String("user_id", userID))

	return nil
}

// Inbox 拉取用户邮箱的收件箱。
//
// 空收件箱和拉取失败是两种结果：前者返回空切片，后者返回错误。
func (s *MailService) Inbox(ctx context.Context, userID string) ([]domain.Message, *domain.Session, error) {
	session, err := s.sessions.Get(userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil, domain.ErrNoMailbox
		}
		return nil, nil, fmt.Errorf("failed to load session: %w", err)
	}
	if !session.HasMailbox() {
		return nil, nil, domain.ErrNoMailbox
	}

	messages, err := s.provider.ListMessages(ctx, session.Token)
	if err != nil {
		s.metrics.ProviderRequests.WithLabelValues("list_messages", "error").Inc()
		return nil, nil, fmt.Errorf("failed to list messages: %w", err)
	}
	s.metrics.ProviderRequests.WithLabelValues("list_messages", "ok").Inc()

	return messages, session, nil
}

// ReadMessage 读取单封邮件详情。
func (s *MailService) ReadMessage(ctx context.Context, userID, messageID string) (*domain.Message, error) {
	session, err := s.sessions.Get(userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNoMailbox
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if !session.HasMailbox() {
		return nil, domain.ErrNoMailbox
	}

	message, err := s.provider.GetMessage(ctx, messageID, session.Token)
	if err != nil {
		s.metrics.ProviderRequests.WithLabelValues("get_message", "error").Inc()
		return nil, fmt.Errorf("failed to get message %s: %w", messageID, err)
	}
	s.metrics.ProviderRequests.WithLabelValues("get_message", "ok").Inc()

	return message, nil
}

// generatePassword 生成随机密码。
func (s *MailService) generatePassword(length int) string {
	s.randMu.Lock()
	defer s.randMu.Unlock()

	b := make([]byte, length)
	for i := range b {
		b[i] = passwordAlphabet[s.random.Intn(len(passwordAlphabet))]
	}
	return string(b)
}
