package scanning

// defaultMaxTokens bounds the size of the model's reply
const defaultMaxTokens = 500

// analysisPrompt is the shared instruction sent to every provider along with the image
const analysisPrompt = `이 이미지는 영수증 또는 명함입니다. 내용을 분석해서 아래의 JSON 형식 중 하나로 반환해주세요.
만약 영수증이라면, 상호명(store_name), 총 결제 금액(total_amount), 거래일시(transaction_date)를 추출해주세요.
만약 명함이라면, 이름(name), 회사(company), 직책(title), 전화번호(phone), 이메일(email)을 추출해주세요.
해당하는 정보가 없으면 "` + NoData + `"으로 표기해주세요. 다른 설명 없이 JSON 객체만 반환해야 합니다.

영수증 형식:
{
  "type": "receipt",
  "data": {
    "store_name": "상호명",
    "total_amount": "총액",
    "transaction_date": "YYYY-MM-DD"
  }
}

명함 형식:
{
  "type": "business_card",
  "data": {
    "name": "이름",
    "company": "회사명",
    "title": "직책",
    "phone": "전화번호",
    "email": "이메일 주소"
  }
}`
