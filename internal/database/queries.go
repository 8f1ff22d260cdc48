package database

// Queries use ? placeholders; rebind rewrites them for postgres.

// Inbox queries
const (
	SelectInboxQuery = `
		SELECT id, name, provider, session_name, api_url, api_key,
		       connection_status, qr_code, last_error,
		       lock_to_single_conversation, show_deleted_original, updated_at
		FROM inboxes`

	UpsertInboxQuery = `
		INSERT INTO inboxes (
			id, name, provider, session_name, api_url, api_key,
			lock_to_single_conversation, show_deleted_original, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			provider = excluded.provider,
			session_name = excluded.session_name,
			api_url = excluded.api_url,
			api_key = excluded.api_key,
			lock_to_single_conversation = excluded.lock_to_single_conversation,
			show_deleted_original = excluded.show_deleted_original,
			updated_at = excluded.updated_at`

	UpsertInboxConnectionQuery = `
		INSERT INTO inboxes (id, provider, connection_status, qr_code, last_error, updated_at)
		VALUES (?, '', ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			connection_status = excluded.connection_status,
			qr_code = excluded.qr_code,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at`
)

// Contact queries
const (
	SelectContactQuery = `
		SELECT id, inbox_id, name, phone_number, identifier, avatar_url,
		       avatar_checked_at, last_activity_at, created_at
		FROM contacts
		WHERE id = ?`

	InsertContactQuery = `
		INSERT INTO contacts (inbox_id, name, phone_number, identifier, avatar_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`

	InsertContactInboxQuery = `
		INSERT INTO contact_inboxes (contact_id, inbox_id, source_id)
		VALUES (?, ?, ?)
		RETURNING id`

	SelectContactInboxQuery = `
		SELECT id, contact_id, inbox_id, source_id
		FROM contact_inboxes
		WHERE id = ?`

	SelectContactInboxBySourceQuery = `
		SELECT id, contact_id, inbox_id, source_id
		FROM contact_inboxes
		WHERE inbox_id = ? AND source_id = ?`

	UpdateContactNameQuery = `UPDATE contacts SET name = ? WHERE id = ?`

	UpdateContactAvatarQuery = `UPDATE contacts SET avatar_url = ?, avatar_checked_at = ? WHERE id = ?`

	UpdateContactActivityQuery = `UPDATE contacts SET last_activity_at = ? WHERE id = ?`
)

// Conversation queries
const (
	SelectConversationQuery = `
		SELECT id, inbox_id, contact_id, contact_inbox_id, status,
		       contact_last_seen_at, created_at, updated_at
		FROM conversations`

	InsertConversationQuery = `
		INSERT INTO conversations (inbox_id, contact_id, contact_inbox_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`

	InsertConversationLabelQuery = `
		INSERT INTO conversation_labels (conversation_id, label)
		VALUES (?, ?)
		ON CONFLICT DO NOTHING`

	SelectConversationLabelsQuery = `
		SELECT label FROM conversation_labels
		WHERE conversation_id = ?
		ORDER BY label`

	UpdateContactLastSeenQuery = `
		UPDATE conversations SET contact_last_seen_at = ?, updated_at = ?
		WHERE id = ?`
)

// Message queries
const (
	SelectMessageQuery = `
		SELECT m.id, m.conversation_id, m.inbox_id, m.message_type, m.content,
		       m.content_type, m.source_id, m.waha_message_id, m.status,
		       m.content_attributes, m.created_at, m.updated_at
		FROM messages m`

	InsertMessageQuery = `
		INSERT INTO messages (
			conversation_id, inbox_id, message_type, content, content_type,
			source_id, waha_message_id, status, content_attributes,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`

	// UpdateMessageStatusQuery is completed with the placeholders of the
	// states that may not move to the new status.
	UpdateMessageStatusQuery = `
		UPDATE messages SET status = ?, updated_at = ?
		WHERE id = ? AND COALESCE(status, '') NOT IN (%s)`

	UpdateMessageContentQuery = `
		UPDATE messages
		SET content = ?, content_type = ?, content_attributes = ?, updated_at = ?
		WHERE id = ?`

	UpdateMessageSourceIDQuery = `UPDATE messages SET source_id = ?, updated_at = ? WHERE id = ?`

	FillMessageWAHAIDQuery = `
		UPDATE messages SET waha_message_id = ?
		WHERE id = ? AND waha_message_id = ''`

	InsertExternalIDQuery = `
		INSERT INTO message_external_ids (message_id, external_id)
		VALUES (?, ?)
		ON CONFLICT DO NOTHING`

	SelectExternalIDsQuery = `
		SELECT external_id FROM message_external_ids
		WHERE message_id = ?`
)

// Attachment queries
const (
	InsertAttachmentQuery = `
		INSERT INTO attachments (
			message_id, file_type, external_url, coordinates_lat,
			coordinates_long, fallback_title, meta
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`

	SelectAttachmentsQuery = `
		SELECT id, message_id, file_type, external_url, coordinates_lat,
		       coordinates_long, fallback_title, meta
		FROM attachments
		WHERE message_id = ?
		ORDER BY id`

	DeleteAttachmentsQuery = `DELETE FROM attachments WHERE message_id = ?`
)

// Migration bookkeeping
const (
	CreateSchemaMigrationsQuery = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name       TEXT PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL
		)`

	SelectAppliedMigrationsQuery = `SELECT name FROM schema_migrations ORDER BY name`

	InsertAppliedMigrationQuery = `INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)`
)
