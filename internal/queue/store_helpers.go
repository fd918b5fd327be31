package queue

import (
	"database/sql"
	"errors"
	"time"
)

const taskColumns = "id, source_path, source_name, title, kind, clip_name, clip_start, clip_end, provider, status, error_message, created_at, updated_at, progress_stage, progress_percent, progress_message, output_path, fingerprint, last_heartbeat, needs_review, review_reason"

func scanTask(scanner interface{ Scan(dest ...any) error }) (*Task, error) {
	var (
		id               int64
		sourcePath       sql.NullString
		sourceName       sql.NullString
		title            sql.NullString
		kind             sql.NullString
		clipName         sql.NullString
		clipStart        sql.NullFloat64
		clipEnd          sql.NullFloat64
		provider         sql.NullString
		statusStr        string
		errorMessage     sql.NullString
		createdRaw       sql.NullString
		updatedRaw       sql.NullString
		progressStage    sql.NullString
		progressPercent  sql.NullFloat64
		progressMessage  sql.NullString
		outputPath       sql.NullString
		fingerprint      sql.NullString
		lastHeartbeatRaw sql.NullString
		needsReview      sql.NullInt64
		reviewReason     sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&sourcePath,
		&sourceName,
		&title,
		&kind,
		&clipName,
		&clipStart,
		&clipEnd,
		&provider,
		&statusStr,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
		&progressStage,
		&progressPercent,
		&progressMessage,
		&outputPath,
		&fingerprint,
		&lastHeartbeatRaw,
		&needsReview,
		&reviewReason,
	); err != nil {
		return nil, err
	}

	task := &Task{
		ID:              id,
		SourcePath:      sourcePath.String,
		SourceName:      sourceName.String,
		Title:           title.String,
		Kind:            Kind(kind.String),
		ClipName:        clipName.String,
		Provider:        provider.String,
		Status:          Status(statusStr),
		ErrorMessage:    errorMessage.String,
		ProgressStage:   progressStage.String,
		ProgressPercent: progressPercent.Float64,
		ProgressMessage: progressMessage.String,
		OutputPath:      outputPath.String,
		Fingerprint:     fingerprint.String,
		ReviewReason:    reviewReason.String,
	}
	if task.Kind == "" {
		task.Kind = KindWholeFile
	}
	if clipStart.Valid {
		v := clipStart.Float64
		task.ClipStart = &v
	}
	if clipEnd.Valid {
		v := clipEnd.Float64
		task.ClipEnd = &v
	}
	if needsReview.Valid {
		task.NeedsReview = needsReview.Int64 != 0
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		task.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		task.UpdatedAt = updated
	}
	if lastHeartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(lastHeartbeatRaw.String); err == nil {
			task.LastHeartbeat = &heartbeat
		}
	}
	return task, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableFloat(value *float64) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	v := value.UTC().Format(time.RFC3339Nano)
	return v
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
