package directory

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/ppissanetzky/barcode-sub000/internal/model"
)

// XenForo reads members straight from the forum's database.
type XenForo struct {
	db *sql.DB

	// HoldersGroup is the user group whose members may hold equipment
	// indefinitely. The same group serves as the holders list.
	HoldersGroup int64

	// AllowedGroups limits the program to members of these groups. Empty
	// means every member who is not banned on the forum.
	AllowedGroups []int64
}

// OpenXenForo connects to the forum's MySQL database.
func OpenXenForo(dsn string, holdersGroup int64, allowedGroups []int64) (*XenForo, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening forum database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to forum database: %w", err)
	}
	return NewXenForo(db, holdersGroup, allowedGroups), nil
}

// NewXenForo wraps an open connection to the forum database.
func NewXenForo(db *sql.DB, holdersGroup int64, allowedGroups []int64) *XenForo {
	return &XenForo{db: db, HoldersGroup: holdersGroup, AllowedGroups: allowedGroups}
}

// Close closes the database connection.
func (x *XenForo) Close() error {
	return x.db.Close()
}

const memberQuery = `SELECT u.user_id, u.username, u.user_group_id, u.secondary_group_ids, u.is_banned,
       COALESCE(p.location, '')
FROM xf_user u
LEFT JOIN xf_user_profile p ON p.user_id = u.user_id`

type member struct {
	id       int64
	name     string
	location string
	groups   []int64
	forumBan bool
}

func scanMember(row interface{ Scan(...any) error }) (*member, error) {
	m := &member{}
	var primary int64
	var secondary []byte
	var banned int
	if err := row.Scan(&m.id, &m.name, &primary, &secondary, &banned, &m.location); err != nil {
		return nil, err
	}
	m.forumBan = banned != 0
	m.groups = append([]int64{primary}, parseGroups(string(secondary))...)
	return m, nil
}

// parseGroups reads XenForo's comma separated group list.
func parseGroups(s string) []int64 {
	var groups []int64
	for _, part := range strings.Split(s, ",") {
		if id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64); err == nil {
			groups = append(groups, id)
		}
	}
	return groups
}

func (m *member) in(group int64) bool {
	for _, g := range m.groups {
		if g == group {
			return true
		}
	}
	return false
}

func (x *XenForo) user(m *member) *model.User {
	u := &model.User{
		ID:               m.id,
		Name:             m.name,
		Location:         m.location,
		CanHoldEquipment: x.HoldersGroup != 0 && m.in(x.HoldersGroup),
	}
	if !m.forumBan {
		u.Allowed = len(x.AllowedGroups) == 0 || u.CanHoldEquipment
		for _, g := range x.AllowedGroups {
			if m.in(g) {
				u.Allowed = true
			}
		}
	}
	return u
}

func (x *XenForo) LookupUser(ctx context.Context, id int64) (*model.User, error) {
	m, err := scanMember(x.db.QueryRowContext(ctx, memberQuery+` WHERE u.user_id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up user %d: %w", id, err)
	}
	return x.user(m), nil
}

func (x *XenForo) FindHolders(ctx context.Context) ([]model.Holder, error) {
	if x.HoldersGroup == 0 {
		return nil, nil
	}

	// The LIKE only narrows the scan; membership is checked exactly below.
	g := strconv.FormatInt(x.HoldersGroup, 10)
	rows, err := x.db.QueryContext(ctx,
		memberQuery+` WHERE u.user_group_id = ? OR u.secondary_group_ids LIKE ? ORDER BY u.user_id`,
		x.HoldersGroup, "%"+g+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("finding holders: %w", err)
	}
	defer rows.Close()

	var holders []model.Holder
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning holder: %w", err)
		}
		if m.forumBan || !m.in(x.HoldersGroup) {
			continue
		}
		holders = append(holders, model.Holder{UserID: m.id, Location: m.location})
	}
	return holders, rows.Err()
}
