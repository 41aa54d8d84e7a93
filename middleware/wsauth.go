package middleware

import (
	"PPGate/service/gateway"
	"PPGate/tools/errs"
)

// LoginCheck 认证检查，未认证直接拒绝后续处理
func LoginCheck(w *gateway.Context) {
	if !w.Sess.Authorized() {
		w.Fail(errs.ErrUnauthenticated)
	}
}
