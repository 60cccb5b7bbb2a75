package errors

// エラーコード定数
// 形式: CATEGORY_SPECIFIC_DETAIL
// フロントエンドはこのコードを基にメッセージを出し分ける

const (
	// ==================== 認証 (AUTH_) ====================
	AuthUnauthorized = "AUTH_UNAUTHORIZED" // ログイン必須
	AuthTokenExpired = "AUTH_TOKEN_EXPIRED" // トークン期限切れ
	AuthTokenInvalid = "AUTH_TOKEN_INVALID" // 不正なトークン

	// ==================== 認可/権限 (AUTHZ_) ====================
	AuthzForbidden    = "AUTHZ_FORBIDDEN"      // アクセス権限なし
	AuthzRoleNotFound = "AUTHZ_ROLE_NOT_FOUND" // 権限情報なし
	AuthzStaffOnly    = "AUTHZ_STAFF_ONLY"     // スタッフ専用

	// ==================== 検証 (VALIDATION_) ====================
	ValidationInvalidInput = "VALIDATION_INVALID_INPUT" // 不正な入力
	ValidationInvalidID    = "VALIDATION_INVALID_ID"    // 不正なID
	ValidationInvalidRange = "VALIDATION_INVALID_RANGE" // 範囲外

	// ==================== カート (CART_) ====================
	CartSessionExpired = "CART_SESSION_EXPIRED" // カート期限切れ
	CartItemNotFound   = "CART_ITEM_NOT_FOUND"  // カート明細なし
	CartEmpty          = "CART_EMPTY"           // カートが空

	// ==================== 在庫予約 (INVENTORY_) ====================
	InventoryConflict = "INVENTORY_CONFLICT" // 受入上限到達

	// ==================== 買取申込 (REQUEST_) ====================
	RequestNotFound      = "REQUEST_NOT_FOUND"      // 申込なし
	RequestInvalidStatus = "REQUEST_INVALID_STATUS" // 不正な状態値
	RequestClosed        = "REQUEST_CLOSED"         // 終端状態のため変更不可

	// ==================== カタログ (VARIANT_) ====================
	VariantNotFound = "VARIANT_NOT_FOUND" // 対象機種なし

	// ==================== 内部エラー (INTERNAL_) ====================
	InternalServerError   = "INTERNAL_SERVER_ERROR"   // サーバーエラー
	InternalDatabaseError = "INTERNAL_DATABASE_ERROR" // DBエラー
)
