package client

// RouteState はルートガードの判定結果。
type RouteState string

const (
	// RoutePending は初回ロード中。中立的な待機表示を行い、遷移は発生させない。
	RoutePending RouteState = "PENDING"
	// RouteAuthenticated は保護コンテンツを描画してよい状態。
	RouteAuthenticated RouteState = "AUTHENTICATED"
	// RouteUnauthenticated は認証画面へのリダイレクトが必要な状態。
	RouteUnauthenticated RouteState = "UNAUTHENTICATED"
)

// Navigator はルート遷移の実行を抽象化する。
type Navigator func(route string)

// RouteGuard は保護ビューへのアクセスを判定する。
//
// 初回ロード完了前はPENDINGを返し、遷移を発生させない。
// 初回ロード完了後はユーザーの有無のみで判定する。バックグラウンドの
// プロフィール再取得（Refreshing）では描画済みコンテンツを奪わない。
// 同一の未認証状態での再評価はリダイレクトを重複発行しない（冪等）。
type RouteGuard struct {
	navigate   Navigator
	signInPath string

	redirected bool
}

// NewRouteGuard はRouteGuardを生成する。
func NewRouteGuard(navigate Navigator, signInPath string) *RouteGuard {
	return &RouteGuard{
		navigate:   navigate,
		signInPath: signInPath,
	}
}

// Evaluate は現在のスナップショットからルート状態を判定する。
// UNAUTHENTICATEDへの遷移時に1回だけ認証画面へのリダイレクトを発行する。
func (g *RouteGuard) Evaluate(snap Snapshot) RouteState {
	if snap.InitialLoading {
		return RoutePending
	}

	if snap.User == nil {
		if !g.redirected {
			g.redirected = true
			g.navigate(g.signInPath)
		}
		return RouteUnauthenticated
	}

	// 認証状態に入ったらリダイレクト抑止をリセットする
	g.redirected = false
	return RouteAuthenticated
}

// InverseGuard は認証画面側の逆ガード。
// セッションが既に存在する（または確立された）場合、保護ルートへ離脱させる。
type InverseGuard struct {
	navigate    Navigator
	defaultPath string

	redirected bool
}

// NewInverseGuard はInverseGuardを生成する。
func NewInverseGuard(navigate Navigator, defaultPath string) *InverseGuard {
	return &InverseGuard{
		navigate:    navigate,
		defaultPath: defaultPath,
	}
}

// Evaluate はスナップショットを評価し、認証済みなら保護ルートへ1回だけ遷移する。
func (g *InverseGuard) Evaluate(snap Snapshot) RouteState {
	if snap.InitialLoading {
		return RoutePending
	}

	if snap.User != nil {
		if !g.redirected {
			g.redirected = true
			g.navigate(g.defaultPath)
		}
		return RouteAuthenticated
	}

	g.redirected = false
	return RouteUnauthenticated
}
