package payment

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const DefaultReferencePrefix = "PAY"

// NewReference は加盟店側の参照番号（out_trade_no）を作る。
// prefix + UNIXミリ秒 + ランダムな16進8文字
func NewReference(prefix string, now time.Time) string {
	if prefix == "" {
		prefix = DefaultReferencePrefix
	}
	rnd := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + strconv.FormatInt(now.UnixMilli(), 10) + rnd[:8]
}
