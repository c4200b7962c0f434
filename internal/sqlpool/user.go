/*
 * MIT License
 *
 * Copyright (c) 2024 WebServer contributors
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

package sqlpool

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/666WXY666/WebServer/internal/applog"
)

// userRecord maps the persisted-state contract's user(username, password)
// table.
type userRecord struct {
	Username string `gorm:"column:username;primaryKey"`
	Password string `gorm:"column:password"`
}

func (userRecord) TableName() string {
	return "user"
}

// Migrate creates the user table against one pool connection. Production
// deployments run migrations out of band; tests use this to stand up an
// in-memory schema.
func (p *Pool) Migrate(ctx context.Context) error {
	return p.Borrow(ctx, func(db *gorm.DB) error {
		return db.WithContext(ctx).AutoMigrate(&userRecord{})
	})
}

// VerifyUser runs the login/register persisted-state contract: on login it
// compares the stored password in plaintext; on register it fails if the
// username is already taken, otherwise it inserts the row. It returns true
// on success (authenticated, or newly registered).
//
// Quirk: on the register path, once the username is confirmed free, the
// outcome is reported as true even if the subsequent insert fails; only a
// pre-existing username fails registration. The insert error, if any, is
// logged rather than surfaced to the caller.
func (p *Pool) VerifyUser(ctx context.Context, username, password string, isLogin bool) (bool, error) {
	var ok bool
	err := p.Borrow(ctx, func(db *gorm.DB) error {
		var rec userRecord
		err := db.WithContext(ctx).Where("username = ?", username).Limit(1).Take(&rec).Error

		switch {
		case err == nil:
			if isLogin {
				ok = rec.Password == password
				return nil
			}
			ok = false // registering an existing username always fails
			return nil
		case errors.Is(err, gorm.ErrRecordNotFound):
			if isLogin {
				ok = false
				return nil
			}
			if insErr := db.WithContext(ctx).Create(&userRecord{Username: username, Password: password}).Error; insErr != nil {
				if log := applog.Get(); log != nil {
					log.Errorf("register insert for %q failed: %v", username, insErr)
				}
			}
			ok = true
			return nil
		default:
			return err
		}
	})

	return ok, err
}
