package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/yutakm/textswap/internal/models"
)

var (
	ErrUserNotFound          = errors.New("user not found")
	ErrUserAlreadyExists     = errors.New("user already exists")
	ErrTextbookNotFound      = errors.New("textbook not found")
	ErrNotOwner              = errors.New("caller does not own the textbook")
	ErrWishlistEntryNotFound = errors.New("wishlist entry not found")
	ErrWishlistExists        = errors.New("textbook already on wishlist")
	ErrRequestNotFound       = errors.New("request not found")
	ErrDuplicateRequest      = errors.New("request already exists for this textbook")
	ErrRequestDecided        = errors.New("request is no longer waiting")
	ErrChatNotOpen           = errors.New("chat is not unlocked for this request")
	ErrNotParticipant        = errors.New("caller is not a party to this request")
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// isPQError reports whether err is a Postgres error with the given code.
func isPQError(err error, code string) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == code
}

type PostgresDB struct {
	*sql.DB
}

func NewPostgresDB(connStr string) (*PostgresDB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PostgresDB{db}, nil
}

func (db *PostgresDB) Close() error {
	return db.DB.Close()
}

// --- Users ---

func (db *PostgresDB) CreateUser(email, passwordHash string) (*models.User, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM users WHERE email = $1", email).Scan(&count)
	if err != nil {
		return nil, err
	}

	if count > 0 {
		return nil, ErrUserAlreadyExists
	}

	user := &models.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
		LastSeen:     time.Now().UTC(),
	}

	_, err = db.Exec(
		"INSERT INTO users (id, email, password_hash, created_at, last_seen) VALUES ($1, $2, $3, $4, $5)",
		user.ID, user.Email, user.PasswordHash, user.CreatedAt, user.LastSeen,
	)
	if err != nil {
		// The COUNT check above races with concurrent signups; the unique
		// index is the authority.
		if isPQError(err, pqUniqueViolation) {
			return nil, ErrUserAlreadyExists
		}
		return nil, err
	}

	return user, nil
}

func (db *PostgresDB) GetUserByEmail(email string) (*models.User, error) {
	user := &models.User{}

	err := db.QueryRow(
		"SELECT id, email, password_hash, created_at, last_seen FROM users WHERE email = $1",
		email).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.LastSeen)

	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	return user, nil
}

func (db *PostgresDB) GetUserByID(id uuid.UUID) (*models.User, error) {
	user := &models.User{}

	err := db.QueryRow(
		"SELECT id, email, password_hash, created_at, last_seen FROM users WHERE id = $1",
		id).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.LastSeen)

	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	return user, nil
}

func (db *PostgresDB) UpdateUserEmail(userID uuid.UUID, email string) error {
	result, err := db.Exec("UPDATE users SET email = $1 WHERE id = $2", email, userID)
	if err != nil {
		if isPQError(err, pqUniqueViolation) {
			return ErrUserAlreadyExists
		}
		return err
	}

	return requireRow(result, ErrUserNotFound)
}

func (db *PostgresDB) UpdateUserPassword(userID uuid.UUID, passwordHash string) error {
	result, err := db.Exec("UPDATE users SET password_hash = $1 WHERE id = $2", passwordHash, userID)
	if err != nil {
		return err
	}

	return requireRow(result, ErrUserNotFound)
}

func (db *PostgresDB) UpdateLastSeen(userID uuid.UUID) error {
	result, err := db.Exec("UPDATE users SET last_seen = $1 WHERE id = $2",
		time.Now().UTC(), userID)
	if err != nil {
		return err
	}

	return requireRow(result, ErrUserNotFound)
}

// requireRow maps an update that matched nothing to the given sentinel.
func requireRow(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}

// --- Textbooks ---

const textbookColumns = `id, user_id, title, author, subject, grade, isbn, details, COALESCE(image_key, ''), created_at, updated_at`

func scanTextbook(row interface{ Scan(...interface{}) error }) (*models.Textbook, error) {
	var tb models.Textbook
	err := row.Scan(&tb.ID, &tb.OwnerID, &tb.Title, &tb.Author, &tb.Subject,
		&tb.Grade, &tb.ISBN, &tb.Details, &tb.ImageKey, &tb.CreatedAt, &tb.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &tb, nil
}

func (db *PostgresDB) CreateTextbook(ownerID uuid.UUID, in models.TextbookInput) (*models.Textbook, error) {
	now := time.Now().UTC()
	tb := &models.Textbook{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Title:     in.Title,
		Author:    in.Author,
		Subject:   in.Subject,
		Grade:     in.Grade,
		ISBN:      in.ISBN,
		Details:   in.Details,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := db.Exec(`
		INSERT INTO textbook (id, user_id, title, author, subject, grade, isbn, details, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		tb.ID, tb.OwnerID, tb.Title, tb.Author, tb.Subject, tb.Grade, tb.ISBN, tb.Details, tb.CreatedAt, tb.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return tb, nil
}

func (db *PostgresDB) GetTextbookByID(id uuid.UUID) (*models.Textbook, error) {
	tb, err := scanTextbook(db.QueryRow(
		"SELECT "+textbookColumns+" FROM textbook WHERE id = $1", id))

	if err == sql.ErrNoRows {
		return nil, ErrTextbookNotFound
	}
	if err != nil {
		return nil, err
	}

	return tb, nil
}

func (db *PostgresDB) GetTextbooksByOwner(ownerID uuid.UUID) ([]*models.Textbook, error) {
	rows, err := db.Query(
		"SELECT "+textbookColumns+" FROM textbook WHERE user_id = $1 ORDER BY updated_at DESC",
		ownerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectTextbooks(rows)
}

func (db *PostgresDB) SearchTextbooks(query string, excludeOwnerID uuid.UUID) ([]*models.Textbook, error) {
	pattern := "%" + query + "%"
	rows, err := db.Query(`
		SELECT `+textbookColumns+`
		FROM textbook
		WHERE user_id != $1
		  AND (title ILIKE $2 OR author ILIKE $2 OR subject ILIKE $2)
		ORDER BY updated_at DESC`,
		excludeOwnerID, pattern,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectTextbooks(rows)
}

func collectTextbooks(rows *sql.Rows) ([]*models.Textbook, error) {
	var textbooks []*models.Textbook
	for rows.Next() {
		tb, err := scanTextbook(rows)
		if err != nil {
			return nil, err
		}
		textbooks = append(textbooks, tb)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return textbooks, nil
}

func (db *PostgresDB) UpdateTextbook(id, ownerID uuid.UUID, in models.TextbookInput) (*models.Textbook, error) {
	tb, err := scanTextbook(db.QueryRow(`
		UPDATE textbook
		SET title = $1, author = $2, subject = $3, grade = $4, isbn = $5, details = $6, updated_at = $7
		WHERE id = $8 AND user_id = $9
		RETURNING `+textbookColumns,
		in.Title, in.Author, in.Subject, in.Grade, in.ISBN, in.Details, time.Now().UTC(), id, ownerID))

	if err == sql.ErrNoRows {
		return nil, db.textbookMissReason(id)
	}
	if err != nil {
		return nil, err
	}

	return tb, nil
}

func (db *PostgresDB) SetTextbookImage(id, ownerID uuid.UUID, imageKey string) (string, error) {
	tx, err := db.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	var previous sql.NullString
	err = tx.QueryRow(
		"SELECT image_key FROM textbook WHERE id = $1 AND user_id = $2 FOR UPDATE",
		id, ownerID).Scan(&previous)
	if err == sql.ErrNoRows {
		return "", db.textbookMissReason(id)
	}
	if err != nil {
		return "", err
	}

	_, err = tx.Exec(
		"UPDATE textbook SET image_key = $1, updated_at = $2 WHERE id = $3",
		imageKey, time.Now().UTC(), id)
	if err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}

	return previous.String, nil
}

func (db *PostgresDB) DeleteTextbook(id, ownerID uuid.UUID) (string, error) {
	var imageKey sql.NullString
	err := db.QueryRow(
		"DELETE FROM textbook WHERE id = $1 AND user_id = $2 RETURNING image_key",
		id, ownerID).Scan(&imageKey)

	if err == sql.ErrNoRows {
		return "", db.textbookMissReason(id)
	}
	if err != nil {
		return "", err
	}

	return imageKey.String, nil
}

// textbookMissReason disambiguates a guarded write that matched nothing:
// either the row is gone or the caller is not the owner.
func (db *PostgresDB) textbookMissReason(id uuid.UUID) error {
	var exists bool
	if err := db.QueryRow("SELECT EXISTS(SELECT 1 FROM textbook WHERE id = $1)", id).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return ErrNotOwner
	}
	return ErrTextbookNotFound
}

// --- Wishlist ---

func (db *PostgresDB) AddWishlistEntry(userID, textbookID uuid.UUID) (*models.WishlistEntry, error) {
	entry := &models.WishlistEntry{
		ID:         uuid.New(),
		UserID:     userID,
		TextbookID: textbookID,
		CreatedAt:  time.Now().UTC(),
	}

	_, err := db.Exec(
		"INSERT INTO wantbook (id, user_id, textbook_id, created_at) VALUES ($1, $2, $3, $4)",
		entry.ID, entry.UserID, entry.TextbookID, entry.CreatedAt,
	)
	if err != nil {
		if isPQError(err, pqUniqueViolation) {
			return nil, ErrWishlistExists
		}
		if isPQError(err, pqForeignKeyViolation) {
			return nil, ErrTextbookNotFound
		}
		return nil, err
	}

	return entry, nil
}

func (db *PostgresDB) GetWishlistTextbooks(userID uuid.UUID) ([]*models.Textbook, error) {
	rows, err := db.Query(`
		SELECT t.id, t.user_id, t.title, t.author, t.subject, t.grade, t.isbn, t.details,
		       COALESCE(t.image_key, ''), t.created_at, t.updated_at
		FROM wantbook w
		JOIN textbook t ON t.id = w.textbook_id
		WHERE w.user_id = $1
		ORDER BY w.created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectTextbooks(rows)
}

func (db *PostgresDB) HasWishlistEntry(userID, textbookID uuid.UUID) (bool, error) {
	var exists bool
	err := db.QueryRow(
		"SELECT EXISTS(SELECT 1 FROM wantbook WHERE user_id = $1 AND textbook_id = $2)",
		userID, textbookID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (db *PostgresDB) DeleteWishlistEntry(userID, textbookID uuid.UUID) error {
	result, err := db.Exec(
		"DELETE FROM wantbook WHERE user_id = $1 AND textbook_id = $2",
		userID, textbookID,
	)
	if err != nil {
		return err
	}

	return requireRow(result, ErrWishlistEntryNotFound)
}

func (db *PostgresDB) HasActiveRequest(requesterID, textbookID uuid.UUID) (bool, error) {
	var exists bool
	err := db.QueryRow(`
		SELECT EXISTS(
			SELECT 1 FROM request
			WHERE requester_id = $1 AND textbook_id = $2 AND status IN ('wait', 'consent')
		)`,
		requesterID, textbookID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// --- Requests ---

func (db *PostgresDB) CreateRequest(requesterID, textbookID uuid.UUID) (*models.Request, error) {
	now := time.Now().UTC()
	req := &models.Request{
		ID:          uuid.New(),
		RequesterID: requesterID,
		TextbookID:  textbookID,
		Status:      models.StatusWait,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err := db.Exec(
		"INSERT INTO request (id, requester_id, textbook_id, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)",
		req.ID, req.RequesterID, req.TextbookID, req.Status, req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		if isPQError(err, pqUniqueViolation) {
			return nil, ErrDuplicateRequest
		}
		if isPQError(err, pqForeignKeyViolation) {
			return nil, ErrTextbookNotFound
		}
		return nil, err
	}

	return req, nil
}

func (db *PostgresDB) GetRequestByID(id uuid.UUID) (*models.Request, error) {
	var req models.Request
	err := db.QueryRow(
		"SELECT id, requester_id, textbook_id, status, created_at, updated_at FROM request WHERE id = $1",
		id).Scan(&req.ID, &req.RequesterID, &req.TextbookID, &req.Status, &req.CreatedAt, &req.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}

	return &req, nil
}

func (db *PostgresDB) GetRequestParties(id uuid.UUID) (uuid.UUID, uuid.UUID, models.RequestStatus, error) {
	var requesterID, ownerID uuid.UUID
	var status models.RequestStatus

	err := db.QueryRow(`
		SELECT r.requester_id, t.user_id, r.status
		FROM request r
		JOIN textbook t ON t.id = r.textbook_id
		WHERE r.id = $1`,
		id).Scan(&requesterID, &ownerID, &status)

	if err == sql.ErrNoRows {
		return uuid.Nil, uuid.Nil, "", ErrRequestNotFound
	}
	if err != nil {
		return uuid.Nil, uuid.Nil, "", err
	}

	return requesterID, ownerID, status, nil
}

// UpdateRequestStatus is the owner's accept/reject transition. The write is
// a single conditional UPDATE guarded by ownership only, so two racing
// decisions both succeed and the last one wins.
func (db *PostgresDB) UpdateRequestStatus(requestID, ownerID uuid.UUID, status models.RequestStatus) (*models.Request, error) {
	if !status.Decided() {
		return nil, fmt.Errorf("cannot transition request to %q", status)
	}

	var req models.Request
	err := db.QueryRow(`
		UPDATE request
		SET status = $1, updated_at = $2
		WHERE id = $3
		  AND textbook_id IN (SELECT id FROM textbook WHERE user_id = $4)
		RETURNING id, requester_id, textbook_id, status, created_at, updated_at`,
		status, time.Now().UTC(), requestID, ownerID).Scan(
		&req.ID, &req.RequesterID, &req.TextbookID, &req.Status, &req.CreatedAt, &req.UpdatedAt)

	if err == sql.ErrNoRows {
		if _, lookupErr := db.GetRequestByID(requestID); lookupErr != nil {
			return nil, lookupErr
		}
		return nil, ErrNotOwner
	}
	if err != nil {
		return nil, err
	}

	return &req, nil
}

// DeleteRequest withdraws a request. Only the requester may withdraw and
// only while the request is still waiting.
func (db *PostgresDB) DeleteRequest(requestID, requesterID uuid.UUID) error {
	result, err := db.Exec(
		"DELETE FROM request WHERE id = $1 AND requester_id = $2 AND status = 'wait'",
		requestID, requesterID,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected > 0 {
		return nil
	}

	req, err := db.GetRequestByID(requestID)
	if err != nil {
		return err
	}
	if req.RequesterID != requesterID {
		return ErrNotParticipant
	}
	return ErrRequestDecided
}

func (db *PostgresDB) GetRequestsForOwner(ownerID uuid.UUID) ([]*models.RequestSummary, error) {
	rows, err := db.Query(`
		SELECT r.id, r.textbook_id, t.title, u.email, r.status, r.created_at
		FROM request r
		JOIN textbook t ON t.id = r.textbook_id
		JOIN users u ON u.id = r.requester_id
		WHERE t.user_id = $1
		ORDER BY r.created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectRequestSummaries(rows)
}

func (db *PostgresDB) GetRequestsByRequester(requesterID uuid.UUID) ([]*models.RequestSummary, error) {
	rows, err := db.Query(`
		SELECT r.id, r.textbook_id, t.title, u.email, r.status, r.created_at
		FROM request r
		JOIN textbook t ON t.id = r.textbook_id
		JOIN users u ON u.id = t.user_id
		WHERE r.requester_id = $1
		ORDER BY r.created_at DESC`,
		requesterID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectRequestSummaries(rows)
}

func collectRequestSummaries(rows *sql.Rows) ([]*models.RequestSummary, error) {
	var summaries []*models.RequestSummary
	for rows.Next() {
		var s models.RequestSummary
		err := rows.Scan(&s.ID, &s.TextbookID, &s.TextbookTitle, &s.CounterpartEmail, &s.Status, &s.CreatedAt)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, &s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return summaries, nil
}

// GetOpenChats enumerates the consented requests the user participates in,
// from both directions: as the requester (counterpart is the textbook's
// owner) and as the owner (counterpart is the requester).
func (db *PostgresDB) GetOpenChats(userID uuid.UUID) ([]*models.ChatSummary, error) {
	asRequester, err := db.collectChats(`
		SELECT r.id, t.id, t.title, u.email
		FROM request r
		JOIN textbook t ON t.id = r.textbook_id
		JOIN users u ON u.id = t.user_id
		WHERE r.status = 'consent' AND r.requester_id = $1
		ORDER BY r.updated_at DESC`,
		userID)
	if err != nil {
		return nil, err
	}

	asOwner, err := db.collectChats(`
		SELECT r.id, t.id, t.title, u.email
		FROM request r
		JOIN textbook t ON t.id = r.textbook_id
		JOIN users u ON u.id = r.requester_id
		WHERE r.status = 'consent' AND t.user_id = $1
		ORDER BY r.updated_at DESC`,
		userID)
	if err != nil {
		return nil, err
	}

	return append(asRequester, asOwner...), nil
}

func (db *PostgresDB) collectChats(query string, userID uuid.UUID) ([]*models.ChatSummary, error) {
	rows, err := db.Query(query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []*models.ChatSummary
	for rows.Next() {
		var c models.ChatSummary
		if err := rows.Scan(&c.RequestID, &c.TextbookID, &c.TextbookTitle, &c.CounterpartEmail); err != nil {
			return nil, err
		}
		chats = append(chats, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return chats, nil
}

// --- Messages ---

// CreateMessage appends a chat message. The chat must be unlocked
// (request status consent), the sender must be a party to the request,
// and the receiver is derived as the sender's counterpart.
func (db *PostgresDB) CreateMessage(requestID, senderID uuid.UUID, body string) (*models.Message, error) {
	requesterID, ownerID, status, err := db.GetRequestParties(requestID)
	if err != nil {
		return nil, err
	}

	if status != models.StatusConsent {
		return nil, ErrChatNotOpen
	}

	var receiverID uuid.UUID
	switch senderID {
	case requesterID:
		receiverID = ownerID
	case ownerID:
		receiverID = requesterID
	default:
		return nil, ErrNotParticipant
	}

	msg := &models.Message{
		ID:         uuid.New(),
		RequestID:  requestID,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Body:       body,
		IsRead:     false,
		CreatedAt:  time.Now().UTC(),
	}

	_, err = db.Exec(
		"INSERT INTO apply_message (id, request_id, sender_id, receiver_id, message, is_read, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)",
		msg.ID, msg.RequestID, msg.SenderID, msg.ReceiverID, msg.Body, msg.IsRead, msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return msg, nil
}

func (db *PostgresDB) GetMessagesByRequest(requestID uuid.UUID) ([]*models.Message, error) {
	rows, err := db.Query(`
		SELECT id, request_id, sender_id, receiver_id, message, is_read, created_at, updated_at
		FROM apply_message
		WHERE request_id = $1
		ORDER BY created_at ASC`,
		requestID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectMessages(rows)
}

// MarkMessagesRead flips is_read on the given messages, restricted to
// messages of the request that the reader did not send. Already-read ids
// are skipped, which makes repeat calls no-ops. Returns the messages
// actually flipped so the caller can publish read-receipt events.
func (db *PostgresDB) MarkMessagesRead(requestID, readerID uuid.UUID, messageIDs []uuid.UUID) ([]*models.Message, error) {
	ids := make([]string, len(messageIDs))
	for i, id := range messageIDs {
		ids[i] = id.String()
	}

	rows, err := db.Query(`
		UPDATE apply_message
		SET is_read = true, updated_at = $1
		WHERE request_id = $2
		  AND sender_id != $3
		  AND is_read = false
		  AND id = ANY($4::uuid[])
		RETURNING id, request_id, sender_id, receiver_id, message, is_read, created_at, updated_at`,
		time.Now().UTC(), requestID, readerID, pq.Array(ids),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectMessages(rows)
}

func collectMessages(rows *sql.Rows) ([]*models.Message, error) {
	var messages []*models.Message
	for rows.Next() {
		var msg models.Message
		var updatedAt sql.NullTime

		err := rows.Scan(&msg.ID, &msg.RequestID, &msg.SenderID, &msg.ReceiverID,
			&msg.Body, &msg.IsRead, &msg.CreatedAt, &updatedAt)
		if err != nil {
			return nil, err
		}

		if updatedAt.Valid {
			msg.UpdatedAt = &updatedAt.Time
		}

		messages = append(messages, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}
