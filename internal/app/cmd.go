package app

// Command はバイナリのサブコマンドを表す。
type Command string

const (
	// CommandServe はHTTPサーバーとして起動する。引数なしのデフォルト。
	CommandServe Command = "serve"
	// CommandMigrate はスキーママイグレーションを適用して終了する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は稼働中サーバーの/healthを叩いて終了コードで結果を返す。
	// シェルを持たないdistrolessイメージのHEALTHCHECK命令から使う。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand は先頭の引数をサブコマンドとして解釈する。
// 未知の値や空の引数列はCommandServeにフォールバックし、
// 2番目以降の引数は無視する。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch Command(args[0]) {
	case CommandMigrate:
		return CommandMigrate
	case CommandHealthcheck:
		return CommandHealthcheck
	default:
		return CommandServe
	}
}
